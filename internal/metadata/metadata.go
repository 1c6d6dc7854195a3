// Package metadata fetches the track currently playing on a FIP channel.
//
// The live song comes from the Radio France Open API (GraphQL). It is then
// enriched with a cover image and a canonical link from Last.fm. Enrichment is
// best effort: a failed or skipped Last.fm lookup leaves the optional fields
// empty and never fails the fetch.
//
// All methods of [Client] are safe for concurrent use.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/observe"
	"github.com/MrWong99/radiobridge/internal/resilience"
)

// ErrUnavailable is wrapped by every error returned from
// [Client.FetchNowPlaying]. Callers treat it as "try again next poll".
var ErrUnavailable = errors.New("metadata: now-playing unavailable")

// ErrNoLiveSong is returned when the station answered but nothing is on air
// (jingle, talk, news). It wraps [ErrUnavailable].
var ErrNoLiveSong = fmt.Errorf("%w: no live song", ErrUnavailable)

const defaultTimeout = 10 * time.Second

// TrackInfo is an immutable snapshot of the song on air. Empty optional
// fields mean "absent".
type TrackInfo struct {
	Title      string
	AlbumTitle string
	Artists    []string

	// End is the Unix time in seconds at which the song stops playing.
	End int64

	CoverURL     string
	CanonicalURL string
}

// ArtistLine joins the artists the way they are displayed to users.
func (t TrackInfo) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}

// Summary renders "<title> by <artists>".
func (t TrackInfo) Summary() string {
	return t.Title + " by " + t.ArtistLine()
}

// Fetcher is the narrow interface consumed by the live state store and the
// poller. [*Client] implements it.
type Fetcher interface {
	FetchNowPlaying(ctx context.Context, ch catalog.Channel) (TrackInfo, error)
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for both APIs.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every individual HTTP call. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRadioFranceEndpoint overrides the GraphQL endpoint URL.
func WithRadioFranceEndpoint(url string) Option {
	return func(c *Client) {
		c.radioFranceURL = url
	}
}

// WithLastFMEndpoint overrides the Last.fm REST endpoint URL.
func WithLastFMEndpoint(url string) Option {
	return func(c *Client) {
		c.lastFMURL = url
	}
}

// WithEnrichmentBreaker replaces the circuit breaker guarding Last.fm.
func WithEnrichmentBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = cb
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client talks to the Radio France Open API and Last.fm.
type Client struct {
	radioFranceKey string
	lastFMKey      string
	radioFranceURL string
	lastFMURL      string
	timeout        time.Duration
	httpClient     *http.Client
	breaker        *resilience.CircuitBreaker
	metrics        *observe.Metrics
}

// Compile-time interface assertion.
var _ Fetcher = (*Client)(nil)

// New creates a Client. Both API keys are required.
func New(radioFranceKey, lastFMKey string, opts ...Option) (*Client, error) {
	if radioFranceKey == "" {
		return nil, errors.New("metadata: radio france api key must not be empty")
	}
	if lastFMKey == "" {
		return nil, errors.New("metadata: last.fm api key must not be empty")
	}
	c := &Client{
		radioFranceKey: radioFranceKey,
		lastFMKey:      lastFMKey,
		radioFranceURL: radioFranceEndpoint,
		lastFMURL:      lastFMEndpoint,
		timeout:        defaultTimeout,
		httpClient:     &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.breaker == nil {
		c.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "lastfm"})
	}
	return c, nil
}

// FetchNowPlaying returns the track on air for ch. Errors wrap
// [ErrUnavailable]; when nothing is on air the error is [ErrNoLiveSong].
func (c *Client) FetchNowPlaying(ctx context.Context, ch catalog.Channel) (TrackInfo, error) {
	ctx, span := observe.StartChannelSpan(ctx, "metadata.FetchNowPlaying", ch.String())

	start := time.Now()
	track, err := c.fetchLive(ctx, catalog.StationName(ch))
	if c.metrics != nil {
		c.metrics.RecordFetch(ctx, ch.String(), time.Since(start), err)
	}
	if err != nil {
		observe.EndSpan(span, err)
		return TrackInfo{}, err
	}

	c.enrich(ctx, &track)
	observe.EndSpan(span, nil)
	return track, nil
}

// enrich fills the optional Last.fm fields. Failures are logged and swallowed.
func (c *Client) enrich(ctx context.Context, track *TrackInfo) {
	if len(track.Artists) == 0 || track.Title == "" {
		return
	}
	err := c.breaker.Execute(func() error {
		info, err := c.lookupTrack(ctx, track.Artists[0], track.Title)
		if err != nil {
			return err
		}
		track.CoverURL = info.coverURL()
		track.CanonicalURL = info.Track.URL
		return nil
	})
	if err != nil {
		observe.Logger(ctx).Debug("metadata: last.fm enrichment skipped",
			slog.String("title", track.Title),
			slog.Any("err", err))
	}
}
