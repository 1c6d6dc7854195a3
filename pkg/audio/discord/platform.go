// Package discord provides an [audio.Platform] backed by Discord voice
// channels via the bwmarrin/discordgo library. It encodes the PCM
// [audio.AudioFrame] stream to Opus and sends it over the voice connection.
//
// The platform shares the *discordgo.Session owned by the bot layer. The
// session must track voice states (the default) for [Connection.Occupants]
// to be meaningful.
package discord

import (
	"context"
	"fmt"

	"github.com/MrWong99/radiobridge/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
// One Platform serves every guild the bot is in.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
}

// New creates a Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// Connect joins the voice channel and returns an active [audio.Connection].
// The bot joins deafened: it only plays audio.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	occupants := func() int { return countOccupants(p.session.State, guildID, channelID) }
	return newConnection(vc, occupants), nil
}

// countOccupants counts the members whose voice state points at channelID.
// A guild missing from the state cache yields [audio.UnknownOccupants].
func countOccupants(state *discordgo.State, guildID, channelID string) int {
	if state == nil {
		return audio.UnknownOccupants
	}
	g, err := state.Guild(guildID)
	if err != nil {
		return audio.UnknownOccupants
	}

	state.RLock()
	defer state.RUnlock()
	n := 0
	for _, vs := range g.VoiceStates {
		if vs != nil && vs.ChannelID == channelID {
			n++
		}
	}
	return n
}
