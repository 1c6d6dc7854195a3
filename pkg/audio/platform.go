// Package audio defines the voice sink abstraction that relay sessions write
// decoded radio audio into.
//
// The two abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] accepts PCM frames for playback and reports how many
//     members share the voice channel.
//
// Implementations live in platform-specific adapter packages (audio/discord).
// This package lives under pkg/ so that other voice backends can implement it.
package audio

import (
	"context"
)

// UnknownOccupants is reported by [Connection.Occupants] when the member
// count cannot be determined.
const UnknownOccupants = -1

// Connection is an active playback session on a voice channel.
//
// A Connection is obtained from [Platform.Connect] and stays valid until
// [Connection.Disconnect] is called. Implementations must be safe for
// concurrent use.
type Connection interface {
	// OutputStream returns the write-only channel for playback. Frames must be
	// 48 kHz stereo signed 16-bit little-endian PCM; any length is accepted
	// and re-chunked internally. The channel is buffered, so a writer blocks
	// once the buffer is full, which paces it at real time.
	//
	// The platform does not close this channel. Frames written after
	// Disconnect are dropped.
	OutputStream() chan<- AudioFrame

	// Occupants returns the number of members currently connected to the
	// voice channel, the bot included. It returns [UnknownOccupants] when
	// the count cannot be determined.
	Occupants() int

	// Disconnect leaves the voice channel and stops background goroutines.
	// It is safe to call more than once; later calls return nil.
	Disconnect() error
}

// Platform is the entry point for a voice provider. Implementations must be
// safe for concurrent use.
type Platform interface {
	// Connect joins voice channel channelID of guild guildID. ctx bounds the
	// connection attempt only.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
