// Package subscription tracks which destination follows which channel.
//
// A destination is anything that receives now-playing announcements: a
// Discord text channel bound to a relay session, or a WebSocket feed client.
// Each destination follows at most one channel; subscribing again replaces
// the previous entry.
package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/nowplaying"
)

// Sink delivers announcements to one destination. Implementations must be
// safe for concurrent use and should honour ctx for timeouts. Sinks are
// compared by identity, so implementations are pointer types.
type Sink interface {
	// Announce renders a new track.
	Announce(ctx context.Context, a nowplaying.Announcement) error

	// Notify posts a plain status line.
	Notify(ctx context.Context, text string) error
}

// Subscription is one registry entry. Gen distinguishes successive
// subscriptions of the same destination.
type Subscription struct {
	DestinationID string
	Channel       catalog.Channel
	Sink          Sink
	Gen           uint64
}

// Follower is a destination receiving a channel's announcements.
type Follower struct {
	DestinationID string
	Sink          Sink
}

// Registry maps destinations to their followed channel. Safe for concurrent
// use.
type Registry struct {
	mu      sync.Mutex
	nextGen uint64
	subs    map[string]Subscription
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscription)}
}

// Subscribe makes dest follow ch through sink, replacing any previous entry
// for dest.
func (r *Registry) Subscribe(dest string, ch catalog.Channel, sink Sink) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextGen++
	sub := Subscription{DestinationID: dest, Channel: ch, Sink: sink, Gen: r.nextGen}
	r.subs[dest] = sub
	return sub
}

// Unsubscribe removes whatever dest follows. It reports whether an entry
// existed.
func (r *Registry) Unsubscribe(dest string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.subs[dest]
	delete(r.subs, dest)
	return ok
}

// Remove deletes sub only if it is still the current entry for its
// destination. A newer subscription of the same destination is left alone.
func (r *Registry) Remove(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.subs[sub.DestinationID]
	if !ok || cur.Gen != sub.Gen {
		return false
	}
	delete(r.subs, sub.DestinationID)
	return true
}

// Lookup returns the current subscription of dest.
func (r *Registry) Lookup(dest string) (Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[dest]
	return sub, ok
}

// FollowersOf returns a snapshot of every destination following ch, ordered
// by destination ID.
func (r *Registry) FollowersOf(ch catalog.Channel) []Follower {
	r.mu.Lock()
	var out []Follower
	for _, sub := range r.subs {
		if sub.Channel == ch {
			out = append(out, Follower{DestinationID: sub.DestinationID, Sink: sub.Sink})
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Follower) int {
		return cmp.Compare(a.DestinationID, b.DestinationID)
	})
	return out
}

// FollowedChannels returns the distinct channels with at least one follower,
// in catalog order.
func (r *Registry) FollowedChannels() []catalog.Channel {
	r.mu.Lock()
	followed := make(map[catalog.Channel]bool, len(r.subs))
	for _, sub := range r.subs {
		followed[sub.Channel] = true
	}
	r.mu.Unlock()

	var out []catalog.Channel
	for _, ch := range catalog.All() {
		if followed[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// Len returns the number of subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
