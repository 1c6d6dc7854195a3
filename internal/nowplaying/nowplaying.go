// Package nowplaying defines the platform-neutral announcement every
// destination renders when a channel starts a new song.
package nowplaying

import (
	"fmt"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/metadata"
)

// NoData is shown for a channel whose track is unknown.
const NoData = "No data"

// Announcement is what sinks render. It is a value and safe to share.
type Announcement struct {
	Channel     catalog.Channel
	StationName string
	Track       metadata.TrackInfo
}

// New builds the announcement for track on ch.
func New(ch catalog.Channel, track metadata.TrackInfo) Announcement {
	return Announcement{
		Channel:     ch,
		StationName: catalog.StationName(ch),
		Track:       track,
	}
}

// Title renders "<title> by <artists>".
func (a Announcement) Title() string {
	return a.Track.Summary()
}

// Footer renders the "listening to" line.
func (a Announcement) Footer() string {
	return "You are listening to " + a.Channel.String()
}

// EndsMarkup renders the end time as a Discord relative timestamp.
func (a Announcement) EndsMarkup() string {
	return fmt.Sprintf("<t:%d:R>", a.Track.End)
}

// ProgramLine renders one line of the program overview for ch. A nil track
// renders as [NoData].
func ProgramLine(ch catalog.Channel, track *metadata.TrackInfo) string {
	if track == nil {
		return ch.String() + ": " + NoData
	}
	return ch.String() + ": " + track.Summary()
}
