// Package catalog is the static registry of FIP radio channels. It maps a
// channel tag to its Icecast stream URL and to the station name understood by
// the Radio France Open API.
//
// All lookups are pure functions of the channel tag and never fail. The set
// of channels may grow; callers should iterate [All] instead of hardcoding it.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// Channel identifies one of the FIP radio streams (e.g. "JAZZ").
type Channel string

// The known FIP channels, in display order.
const (
	FIP        Channel = "FIP"
	Pop        Channel = "POP"
	Jazz       Channel = "JAZZ"
	Rock       Channel = "ROCK"
	Metal      Channel = "METAL"
	World      Channel = "WORLD"
	Groove     Channel = "GROOVE"
	Reggae     Channel = "REGGAE"
	Electro    Channel = "ELECTRO"
	HipHop     Channel = "HIP_HOP"
	Nouveautes Channel = "NOUVEAUTES"
)

const (
	streamBase     = "https://icecast.radiofrance.fr/"
	streamSuffix   = "-midfi.mp3"
	stationPrefix  = "FIP_"
	wordSeparator  = "_"
	fuzzyThreshold = 0.8
)

var channels = []Channel{FIP, Pop, Jazz, Rock, Metal, World, Groove, Reggae, Electro, HipHop, Nouveautes}

// Descriptor is the immutable description of a channel.
type Descriptor struct {
	Channel     Channel
	StreamURL   string
	StationName string
}

// All returns every known channel in display order. The returned slice is a
// copy and may be modified by the caller.
func All() []Channel {
	return slices.Clone(channels)
}

// Default returns the channel played when the user does not pick one.
func Default() Channel {
	return FIP
}

// String returns the channel tag.
func (c Channel) String() string {
	return string(c)
}

// IsValid reports whether c is part of the catalog.
func (c Channel) IsValid() bool {
	return slices.Contains(channels, c)
}

// StreamURL returns the Icecast MP3 stream URL for c. The default channel has
// a fixed URL; every other channel derives its URL from the lowercased tag
// with word separators removed (HIP_HOP → fiphiphop).
func StreamURL(c Channel) string {
	if c == FIP {
		return streamBase + "fip" + streamSuffix
	}
	slug := strings.ReplaceAll(strings.ToLower(string(c)), wordSeparator, "")
	return streamBase + "fip" + slug + streamSuffix
}

// StationName returns the Radio France Open API station enum value for c.
func StationName(c Channel) string {
	if c == FIP {
		return "FIP"
	}
	return stationPrefix + string(c)
}

// Describe bundles the derived values for c.
func Describe(c Channel) Descriptor {
	return Descriptor{
		Channel:     c,
		StreamURL:   StreamURL(c),
		StationName: StationName(c),
	}
}

// Parse looks up a channel by its tag, ignoring case and surrounding space.
// Spaces and dashes are accepted as word separators ("hip hop", "hip-hop").
func Parse(tag string) (Channel, error) {
	c := Channel(normalize(tag))
	if !c.IsValid() {
		return "", fmt.Errorf("catalog: unknown channel %q", tag)
	}
	return c, nil
}

// Resolve maps free-form user input to a channel. An empty input selects
// [Default]. Exact tags win; otherwise the closest channel by Jaro-Winkler
// similarity is chosen when it is similar enough.
func Resolve(input string) (Channel, error) {
	if strings.TrimSpace(input) == "" {
		return Default(), nil
	}
	if c, err := Parse(input); err == nil {
		return c, nil
	}

	norm := normalize(input)
	best, bestScore := Channel(""), 0.0
	for _, c := range channels {
		if s := matchr.JaroWinkler(norm, string(c), false); s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore < fuzzyThreshold {
		return "", fmt.Errorf("catalog: unknown channel %q", input)
	}
	return best, nil
}

// Suggest ranks channels against a partial user input for autocompletion.
// Channels whose tag starts with the input come first, the rest follow by
// decreasing similarity. At most limit channels are returned.
func Suggest(input string, limit int) []Channel {
	norm := normalize(input)
	type scored struct {
		c     Channel
		score float64
	}
	ranked := make([]scored, 0, len(channels))
	for _, c := range channels {
		s := 0.0
		switch {
		case norm == "":
			s = 1
		case strings.HasPrefix(string(c), norm):
			s = 2
		default:
			s = matchr.JaroWinkler(norm, string(c), false)
		}
		ranked = append(ranked, scored{c: c, score: s})
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	out := make([]Channel, 0, limit)
	for _, r := range ranked[:limit] {
		out = append(out, r.c)
	}
	return out
}

func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", wordSeparator, "-", wordSeparator).Replace(s)
}
