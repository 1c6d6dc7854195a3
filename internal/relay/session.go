package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/subscription"
	"github.com/MrWong99/radiobridge/pkg/audio"
)

// IdleMessage is posted to the text channel when the watchdog ends a session.
const IdleMessage = "No user left in the channel, ending radio..."

// StreamLostMessage is posted when the radio stream ends on its own.
const StreamLostMessage = "The radio stream ended, stopping the radio..."

// State is the lifecycle phase of a [Session].
type State int32

const (
	StateStarting State = iota
	StateStreaming
	StateStopping
	StateEnded
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Reasons a session ends, recorded in logs and metrics.
const (
	ReasonUser        = "user"
	ReasonIdle        = "idle"
	ReasonStreamEnded = "stream_ended"
	ReasonStreamError = "stream_error"
	ReasonStartFailed = "start_failed"
	ReasonShutdown    = "shutdown"
)

// Request describes the session a member asked for.
type Request struct {
	GuildID        string
	VoiceChannelID string

	// DestinationID is the text channel receiving announcements.
	DestinationID string

	Channel catalog.Channel
	Sink    subscription.Sink
}

// Session relays one radio channel into one voice channel. Exactly one
// session exists per guild; it is owned by the [Manager].
//
// A session moves Starting → Streaming → Stopping → Ended. Stopping runs
// exactly once regardless of how many triggers fire.
type Session struct {
	req     Request
	manager *Manager
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32

	mu            sync.Mutex
	stopRequested bool
	conn          audio.Connection
	stream        io.ReadCloser
	sub           subscription.Subscription
	subscribed    bool
	reason        string

	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newSession(ctx context.Context, m *Manager, req Request) *Session {
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Session{
		req:     req,
		manager: m,
		log: slog.With(
			"guild_id", req.GuildID,
			"voice_channel_id", req.VoiceChannelID,
			"channel", req.Channel.String()),
		ctx:      sctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// GuildID returns the guild the session plays in.
func (s *Session) GuildID() string { return s.req.GuildID }

// Channel returns the radio channel being relayed.
func (s *Session) Channel() catalog.Channel { return s.req.Channel }

// VoiceChannelID returns the voice channel the bot joined.
func (s *Session) VoiceChannelID() string { return s.req.VoiceChannelID }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session reached [StateEnded].
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason returns why the session stopped, or "" while it runs.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// start runs the Starting phase: join voice, subscribe, announce the current
// track, arm the watchdog and spawn the decoder. On any failure the session
// is stopped before start returns.
func (s *Session) start(ctx context.Context) error {
	conn, err := s.manager.platform.Connect(ctx, s.req.GuildID, s.req.VoiceChannelID)
	if err != nil {
		s.Stop(ReasonStartFailed)
		return fmt.Errorf("%w: %w", ErrVoiceConnect, err)
	}

	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		_ = conn.Disconnect()
		return nil
	}
	s.conn = conn
	s.sub = s.manager.registry.Subscribe(s.req.DestinationID, s.req.Channel, s.req.Sink)
	s.subscribed = true
	s.mu.Unlock()

	if err := s.manager.primer.Prime(ctx, s.req.Channel, s.req.Sink); err != nil {
		s.log.Warn("relay: failed to announce current track", "err", err)
	}

	go s.watchdog(conn)

	stream, err := s.manager.decoder.Open(s.ctx, catalog.StreamURL(s.req.Channel))
	if err != nil {
		s.mu.Lock()
		stopped := s.stopRequested
		s.mu.Unlock()
		if stopped {
			return nil
		}
		s.Stop(ReasonStartFailed)
		return fmt.Errorf("%w: %w", ErrStreamRelay, err)
	}

	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		_ = stream.Close()
		return nil
	}
	s.stream = stream
	s.state.Store(int32(StateStreaming))
	s.mu.Unlock()

	s.log.Info("relay: streaming started")
	go s.relay(conn, stream)
	return nil
}

// relay copies 20 ms PCM frames from the decoder into the voice connection
// until EOF, a read error or stop.
func (s *Session) relay(conn audio.Connection, stream io.Reader) {
	out := conn.OutputStream()
	buf := make([]byte, audio.FrameBytes)
	var pos time.Duration

	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			frame := audio.AudioFrame{
				Data:       append([]byte(nil), buf[:n]...),
				SampleRate: audio.SampleRate,
				Channels:   audio.Channels,
				Timestamp:  pos,
			}
			pos += frame.Duration()
			select {
			case out <- frame:
			case <-s.stopping:
				return
			}
		}
		if err == nil {
			continue
		}

		select {
		case <-s.stopping:
			return
		default:
		}
		reason := ReasonStreamEnded
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			reason = ReasonStreamError
			if !errors.Is(err, ErrStreamRelay) {
				err = fmt.Errorf("%w: %w", ErrStreamRelay, err)
			}
			s.log.Error("relay: stream failed", "err", err)
		}
		s.notify(StreamLostMessage)
		s.Stop(reason)
		return
	}
}

// watchdog ends the session once nobody but the bot is left in the voice
// channel. An unknown count keeps the session alive.
func (s *Session) watchdog(conn audio.Connection) {
	t := time.NewTicker(s.manager.idleInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stopping:
			return
		case <-t.C:
			if n := conn.Occupants(); n > 1 || n == audio.UnknownOccupants {
				continue
			}
			s.log.Info("relay: voice channel is empty")
			s.notify(IdleMessage)
			s.Stop(ReasonIdle)
			return
		}
	}
}

func (s *Session) notify(text string) {
	ctx, cancel := context.WithTimeout(s.ctx, s.manager.notifyTimeout)
	defer cancel()
	if err := s.req.Sink.Notify(ctx, text); err != nil {
		s.log.Warn("relay: failed to post notice", "err", err)
	}
}

// Stop tears the session down. Only the first call has an effect; it never
// waits for the relay goroutine, so it is safe to call from it.
func (s *Session) Stop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopRequested = true
		s.reason = reason
		conn, stream := s.conn, s.stream
		sub, subscribed := s.sub, s.subscribed
		s.mu.Unlock()

		s.state.Store(int32(StateStopping))
		close(s.stopping)

		if subscribed {
			s.manager.registry.Remove(sub)
		}
		if conn != nil {
			if err := conn.Disconnect(); err != nil {
				s.log.Warn("relay: voice disconnect failed", "err", err)
			}
		}
		if stream != nil {
			// A stream error was already logged by the relay loop.
			if err := stream.Close(); err != nil && reason != ReasonStreamError {
				s.log.Warn("relay: decoder shutdown failed", "err", err)
			}
		}
		s.cancel()

		s.state.Store(int32(StateEnded))
		s.manager.release(s)
		close(s.done)
		s.log.Info("relay: session ended", "reason", reason)
	})
}
