// Package relay runs supervised audio relay sessions: one per guild, each
// streaming a FIP channel into a voice channel while its text channel follows
// the channel's now-playing announcements.
//
// A [Manager] owns every [Session]. Sessions end when a member stops them,
// when the voice channel empties, when the stream ends, or on shutdown.
package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/observe"
	"github.com/MrWong99/radiobridge/internal/subscription"
	"github.com/MrWong99/radiobridge/pkg/audio"
)

const (
	defaultIdleInterval  = 10 * time.Second
	defaultNotifyTimeout = 10 * time.Second
)

// Primer announces the current track of a channel to a new follower.
type Primer interface {
	Prime(ctx context.Context, ch catalog.Channel, sink subscription.Sink) error
}

// Option is a functional option for [NewManager].
type Option func(*Manager)

// WithIdleCheckInterval sets how often the watchdog counts voice channel
// members.
func WithIdleCheckInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.idleInterval = d
		}
	}
}

// WithNotifyTimeout bounds status messages posted by sessions.
func WithNotifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.notifyTimeout = d
		}
	}
}

// WithMetrics records session counts on met.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Manager) {
		m.metrics = met
	}
}

// Manager keys live sessions by guild.
type Manager struct {
	platform audio.Platform
	decoder  Decoder
	registry *subscription.Registry
	primer   Primer

	idleInterval  time.Duration
	notifyTimeout time.Duration
	metrics       *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(platform audio.Platform, decoder Decoder, registry *subscription.Registry, primer Primer, opts ...Option) *Manager {
	m := &Manager{
		platform:      platform,
		decoder:       decoder,
		registry:      registry,
		primer:        primer,
		idleInterval:  defaultIdleInterval,
		notifyTimeout: defaultNotifyTimeout,
		sessions:      make(map[string]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start creates and starts a session for req. It blocks until the session is
// streaming or failed. A guild with a live session is rejected with
// [ErrSessionActive]; a request without a voice channel with [ErrNotInVoice].
func (m *Manager) Start(ctx context.Context, req Request) (*Session, error) {
	if req.VoiceChannelID == "" {
		return nil, ErrNotInVoice
	}
	if !req.Channel.IsValid() {
		req.Channel = catalog.Default()
	}

	m.mu.Lock()
	if _, ok := m.sessions[req.GuildID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionActive
	}
	s := newSession(ctx, m, req)
	m.sessions[req.GuildID] = s
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Add(ctx, 1)
	}
	if err := s.start(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Stop ends the session of guildID. It returns [ErrNoSession] when there is
// none.
func (m *Manager) Stop(guildID string) error {
	s, ok := m.Active(guildID)
	if !ok {
		return ErrNoSession
	}
	s.Stop(ReasonUser)
	return nil
}

// Active returns the live session of guildID.
func (m *Manager) Active(guildID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops every session and waits until all of them ended or ctx is
// done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	if len(all) > 0 {
		slog.Info("relay: stopping sessions", "count", len(all))
	}
	for _, s := range all {
		s.Stop(ReasonShutdown)
	}
	for _, s := range all {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// release frees the guild slot if s still holds it.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.sessions[s.req.GuildID] == s {
		delete(m.sessions, s.req.GuildID)
	}
	m.mu.Unlock()

	if m.metrics != nil {
		ctx := context.WithoutCancel(s.ctx)
		m.metrics.ActiveSessions.Add(ctx, -1)
		m.metrics.RecordSessionEnd(ctx, s.Reason())
	}
}
