// Package mock provides a recording implementation of [subscription.Sink] for
// unit tests.
//
// The mock is safe for concurrent use. Set the exported Error fields to
// control return values and inspect the recorded calls afterwards.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/radiobridge/internal/nowplaying"
	"github.com/MrWong99/radiobridge/internal/subscription"
)

// Compile-time interface assertion.
var _ subscription.Sink = (*Sink)(nil)

// Sink is a mock implementation of [subscription.Sink].
type Sink struct {
	mu sync.Mutex

	// AnnounceError is returned by [Sink.Announce].
	AnnounceError error

	// NotifyError is returned by [Sink.Notify].
	NotifyError error

	// Announcements records every announcement passed to Announce, including
	// those for which AnnounceError was returned.
	Announcements []nowplaying.Announcement

	// Notices records every text passed to Notify.
	Notices []string

	// OnAnnounce, when set, is called after an announcement is recorded.
	OnAnnounce func(nowplaying.Announcement)
}

// Announce implements [subscription.Sink].
func (s *Sink) Announce(_ context.Context, a nowplaying.Announcement) error {
	s.mu.Lock()
	s.Announcements = append(s.Announcements, a)
	err := s.AnnounceError
	hook := s.OnAnnounce
	s.mu.Unlock()

	if hook != nil {
		hook(a)
	}
	return err
}

// Notify implements [subscription.Sink].
func (s *Sink) Notify(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notices = append(s.Notices, text)
	return s.NotifyError
}

// AnnouncedTitles returns the titles of every recorded announcement in order.
func (s *Sink) AnnouncedTitles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Announcements))
	for i, a := range s.Announcements {
		out[i] = a.Track.Title
	}
	return out
}

// NoticeCount returns how many notices were recorded.
func (s *Sink) NoticeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Notices)
}

// Reset clears all recorded calls.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Announcements = nil
	s.Notices = nil
}
