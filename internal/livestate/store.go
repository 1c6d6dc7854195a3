// Package livestate keeps the last known track of every FIP channel and
// decides when it must be refreshed.
//
// A channel is due for a refresh when nothing is known yet or when the known
// song has ended. A failed refresh leaves the previous state untouched.
package livestate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/metadata"
	"github.com/MrWong99/radiobridge/internal/observe"
)

// FetchFunc fetches the track currently on air for a channel.
type FetchFunc func(ctx context.Context, ch catalog.Channel) (metadata.TrackInfo, error)

type entry struct {
	track       *metadata.TrackInfo
	refreshedAt time.Time
}

// Option is a functional option for [NewStore].
type Option func(*Store)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics records refresh outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store maps channels to their last known track. The zero value is not
// usable; create one with [NewStore]. Safe for concurrent use.
type Store struct {
	now     func() time.Time
	metrics *observe.Metrics

	mu      sync.Mutex
	entries map[catalog.Channel]entry
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:     time.Now,
		entries: make(map[catalog.Channel]entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RefreshIfExpired fetches a new track for ch when the stored one is absent or
// over. It reports whether the stored track changed and returns the track
// stored after the call (nil when still absent).
//
// The lock is never held while fetch runs. The change is decided by comparing
// against the value stored at commit time, so of two concurrent refreshes
// observing the same new song only one reports changed=true.
func (s *Store) RefreshIfExpired(ctx context.Context, ch catalog.Channel, fetch FetchFunc) (bool, *metadata.TrackInfo) {
	s.mu.Lock()
	cur := s.entries[ch].track
	due := cur == nil || cur.End <= s.now().Unix()
	s.mu.Unlock()

	if !due {
		return false, cur
	}

	ctx, span := observe.StartChannelSpan(ctx, "livestate.Refresh", ch.String())
	track, err := fetch(ctx, ch)
	observe.EndSpan(span, err)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, metadata.ErrNoLiveSong) {
			level = slog.LevelDebug
		}
		observe.Logger(ctx).Log(ctx, level, "livestate: refresh failed",
			slog.String("channel", ch.String()),
			slog.Any("err", err))
		if s.metrics != nil {
			s.metrics.RecordRefresh(ctx, ch.String(), "error")
		}
		return false, s.Peek(ch)
	}

	s.mu.Lock()
	prev := s.entries[ch].track
	changed := prev == nil || prev.End != track.End
	stored := prev
	if changed {
		stored = &track
	}
	s.entries[ch] = entry{track: stored, refreshedAt: s.now()}
	s.mu.Unlock()

	if s.metrics != nil {
		outcome := "unchanged"
		if changed {
			outcome = "changed"
		}
		s.metrics.RecordRefresh(ctx, ch.String(), outcome)
	}
	if changed {
		observe.Logger(ctx).Info("livestate: track changed",
			slog.String("channel", ch.String()),
			slog.String("track", track.Summary()))
	}
	return changed, stored
}

// Peek returns the last known track of ch without fetching. The returned
// value must not be modified.
func (s *Store) Peek(ch catalog.Channel) *metadata.TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[ch].track
}

// RefreshedAt returns when ch was last fetched successfully, or the zero time.
func (s *Store) RefreshedAt(ch catalog.Channel) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[ch].refreshedAt
}
