// Package poller drives now-playing refreshes for every followed channel and
// fans out announcements to the followers of a channel whose track changed.
//
// A single [Loop] runs for the lifetime of the process. Every pass re-reads
// the followed channels from the subscription registry, so sessions that
// start or stop are picked up on the next pass without any signalling.
//
// All refreshes that can observe a change go through [Loop.Refresh]. Because
// the live state store reports a given change to exactly one caller, every
// follower receives each new track once no matter which path detected it.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/livestate"
	"github.com/MrWong99/radiobridge/internal/metadata"
	"github.com/MrWong99/radiobridge/internal/nowplaying"
	"github.com/MrWong99/radiobridge/internal/observe"
	"github.com/MrWong99/radiobridge/internal/subscription"
)

const (
	defaultPacing          = time.Second
	defaultIdleInterval    = 200 * time.Millisecond
	defaultDeliveryTimeout = 10 * time.Second
	defaultConcurrency     = 4
	maxParallelDeliveries  = 8
)

// Option is a functional option for [New].
type Option func(*Loop)

// WithPacing sets the delay after each channel refresh within a pass.
func WithPacing(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.pacing = d
		}
	}
}

// WithIdleInterval sets the wait between two passes.
func WithIdleInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.idle = d
		}
	}
}

// WithDeliveryTimeout bounds each announcement delivery to one destination.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.deliveryTimeout = d
		}
	}
}

// WithSnapshotConcurrency bounds how many channels [Loop.Snapshot] refreshes
// at once.
func WithSnapshotConcurrency(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithMetrics records delivery outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) {
		l.metrics = m
	}
}

// Loop is the polling and fan-out engine.
type Loop struct {
	store    *livestate.Store
	registry *subscription.Registry
	fetch    livestate.FetchFunc

	pacing          time.Duration
	idle            time.Duration
	deliveryTimeout time.Duration
	concurrency     int
	metrics         *observe.Metrics

	lastPass atomic.Int64

	// delivered holds the End of the last track each follower received, so a
	// track reaching a sink through both Prime and a fan-out is shown once.
	mu        sync.Mutex
	delivered map[deliveryKey]int64
}

type deliveryKey struct {
	sink subscription.Sink
	ch   catalog.Channel
}

// New creates a Loop that refreshes through store using fetcher and delivers
// to the followers recorded in registry.
func New(store *livestate.Store, registry *subscription.Registry, fetcher metadata.Fetcher, opts ...Option) *Loop {
	l := &Loop{
		store:           store,
		registry:        registry,
		fetch:           fetcher.FetchNowPlaying,
		pacing:          defaultPacing,
		idle:            defaultIdleInterval,
		deliveryTimeout: defaultDeliveryTimeout,
		concurrency:     defaultConcurrency,
		delivered:       make(map[deliveryKey]int64),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run polls until ctx is cancelled. It returns nil on cancellation; no other
// condition ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("poller started",
		"pacing", l.pacing,
		"idle_interval", l.idle)
	for {
		for _, ch := range l.registry.FollowedChannels() {
			l.Refresh(ctx, ch)
			if !sleep(ctx, l.pacing) {
				return nil
			}
		}
		l.prune()
		l.lastPass.Store(time.Now().UnixNano())
		if !sleep(ctx, l.idle) {
			return nil
		}
	}
}

// LastPass returns when the loop last completed a pass, or the zero time.
func (l *Loop) LastPass() time.Time {
	ns := l.lastPass.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Refresh refreshes ch if its track expired and, when the track changed,
// announces it to every follower of ch. It returns the refresh result.
func (l *Loop) Refresh(ctx context.Context, ch catalog.Channel) (bool, *metadata.TrackInfo) {
	changed, track := l.store.RefreshIfExpired(ctx, ch, l.fetch)
	if changed && track != nil {
		l.fanOut(ctx, nowplaying.New(ch, *track), l.registry.FollowersOf(ch))
	}
	return changed, track
}

// Prime announces the current track of ch to a destination that just started
// following it. If the refresh detects a change, every follower (sink
// included, as it is already subscribed) is notified through the normal
// fan-out; otherwise only sink receives the known track.
func (l *Loop) Prime(ctx context.Context, ch catalog.Channel, sink subscription.Sink) error {
	changed, track := l.Refresh(ctx, ch)
	if changed || track == nil {
		return nil
	}
	return l.deliver(ctx, nowplaying.New(ch, *track), sink)
}

// Entry is one channel's line in a program snapshot.
type Entry struct {
	Channel catalog.Channel
	Track   *metadata.TrackInfo
}

// Snapshot refreshes every catalog channel concurrently and returns the last
// known track of each, in catalog order. Changes detected here are fanned out
// like any other refresh.
func (l *Loop) Snapshot(ctx context.Context) []Entry {
	channels := catalog.All()

	var g errgroup.Group
	g.SetLimit(l.concurrency)
	for _, ch := range channels {
		g.Go(func() error {
			l.Refresh(ctx, ch)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Entry, len(channels))
	for i, ch := range channels {
		out[i] = Entry{Channel: ch, Track: l.store.Peek(ch)}
	}
	return out
}

func (l *Loop) fanOut(ctx context.Context, a nowplaying.Announcement, followers []subscription.Follower) {
	if len(followers) == 0 {
		return
	}
	var g errgroup.Group
	g.SetLimit(maxParallelDeliveries)
	for _, f := range followers {
		g.Go(func() error {
			if err := l.deliver(ctx, a, f.Sink); err != nil {
				observe.Logger(ctx).Warn("poller: announcement delivery failed",
					slog.String("channel", a.Channel.String()),
					slog.String("destination", f.DestinationID),
					slog.Any("err", err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Loop) deliver(ctx context.Context, a nowplaying.Announcement, sink subscription.Sink) error {
	if !l.claim(sink, a) {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, l.deliveryTimeout)
	defer cancel()

	err := sink.Announce(dctx, a)
	if l.metrics != nil {
		l.metrics.RecordDelivery(ctx, a.Channel.String(), err)
	}
	return err
}

// claim records that sink is about to receive a. It reports false when sink
// already received the same track of the same channel.
func (l *Loop) claim(sink subscription.Sink, a nowplaying.Announcement) bool {
	k := deliveryKey{sink: sink, ch: a.Channel}
	l.mu.Lock()
	defer l.mu.Unlock()
	if end, ok := l.delivered[k]; ok && end == a.Track.End {
		return false
	}
	l.delivered[k] = a.Track.End
	return true
}

// prune forgets sinks that no longer follow the channel they were served.
func (l *Loop) prune() {
	live := make(map[deliveryKey]struct{})
	for _, ch := range l.registry.FollowedChannels() {
		for _, f := range l.registry.FollowersOf(ch) {
			live[deliveryKey{sink: f.Sink, ch: ch}] = struct{}{}
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.delivered {
		if _, ok := live[k]; !ok {
			delete(l.delivered, k)
		}
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
