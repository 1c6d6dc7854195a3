package relay

import "errors"

var (
	// ErrVoiceConnect is returned when the bot cannot join the voice channel.
	// The session is aborted.
	ErrVoiceConnect = errors.New("relay: failed to connect to the voice channel")

	// ErrStreamRelay marks a failure of the decoder or of the copy into the
	// voice connection.
	ErrStreamRelay = errors.New("relay: stream relay failed")

	// ErrSessionActive is returned by [Manager.Start] when the guild already
	// has a live session.
	ErrSessionActive = errors.New("relay: a radio is already playing in this server")

	// ErrNoSession is returned by [Manager.Stop] when the guild has no session.
	ErrNoSession = errors.New("relay: no radio was started in this server")

	// ErrNotInVoice is returned when the requesting member is not in a voice
	// channel.
	ErrNotInVoice = errors.New("relay: member is not in a voice channel")
)
