// Package feed serves now-playing updates over HTTP: a WebSocket stream per
// channel and a JSON snapshot of every channel's last known track.
//
// Each WebSocket client is a destination in the subscription registry, so it
// receives exactly the announcements a Discord text channel following the
// same FIP channel would.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/radiobridge/internal/catalog"
	"github.com/MrWong99/radiobridge/internal/metadata"
	"github.com/MrWong99/radiobridge/internal/nowplaying"
	"github.com/MrWong99/radiobridge/internal/observe"
	"github.com/MrWong99/radiobridge/internal/subscription"
)

const (
	defaultWriteTimeout = 5 * time.Second
	clientBuffer        = 16
)

// ErrSlowClient is returned to the fan-out when a client's queue is full.
var ErrSlowClient = errors.New("feed: client is not keeping up")

// errClientGone is returned once the client disconnected.
var errClientGone = errors.New("feed: client disconnected")

// Message types sent to clients.
const (
	TypeTrack  = "track"
	TypeNotice = "notice"
)

// Message is the JSON document sent to feed clients.
type Message struct {
	Type    string   `json:"type"`
	Channel string   `json:"channel,omitempty"`
	Station string   `json:"station,omitempty"`
	Title   string   `json:"title,omitempty"`
	Album   string   `json:"album,omitempty"`
	Artists []string `json:"artists,omitempty"`
	EndsAt  int64    `json:"ends_at,omitempty"`
	Cover   string   `json:"cover,omitempty"`
	URL     string   `json:"url,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// TrackMessage converts an announcement.
func TrackMessage(a nowplaying.Announcement) Message {
	return Message{
		Type:    TypeTrack,
		Channel: a.Channel.String(),
		Station: a.StationName,
		Title:   a.Track.Title,
		Album:   a.Track.AlbumTitle,
		Artists: a.Track.Artists,
		EndsAt:  a.Track.End,
		Cover:   a.Track.CoverURL,
		URL:     a.Track.CanonicalURL,
	}
}

// Primer announces the current track of a channel to a new follower.
type Primer interface {
	Prime(ctx context.Context, ch catalog.Channel, sink subscription.Sink) error
}

// Peeker returns the last known track of a channel without refreshing it.
type Peeker interface {
	Peek(ch catalog.Channel) *metadata.TrackInfo
}

// Option is a functional option for [NewHandler].
type Option func(*Handler)

// WithWriteTimeout bounds each WebSocket write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithOriginPatterns allows cross-origin WebSocket clients from hosts
// matching the patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.originPatterns = patterns
	}
}

// WithMetrics records the connected client count on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// Handler serves /feed and /nowplaying.
type Handler struct {
	registry *subscription.Registry
	primer   Primer
	peeker   Peeker

	writeTimeout   time.Duration
	originPatterns []string
	metrics        *observe.Metrics

	nextID atomic.Uint64
}

// NewHandler creates a Handler.
func NewHandler(registry *subscription.Registry, primer Primer, peeker Peeker, opts ...Option) *Handler {
	h := &Handler{
		registry:     registry,
		primer:       primer,
		peeker:       peeker,
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /feed", h.ServeFeed)
	mux.HandleFunc("GET /nowplaying", h.ServeNowPlaying)
}

// entry is one channel of the /nowplaying document.
type entry struct {
	Channel string   `json:"channel"`
	Station string   `json:"station"`
	Track   *Message `json:"track"`
}

// ServeNowPlaying writes the last known track of every channel, in catalog
// order. Unknown tracks are null.
func (h *Handler) ServeNowPlaying(w http.ResponseWriter, _ *http.Request) {
	channels := catalog.All()
	out := make([]entry, 0, len(channels))
	for _, ch := range channels {
		e := entry{Channel: ch.String(), Station: catalog.StationName(ch)}
		if t := h.peeker.Peek(ch); t != nil {
			m := TrackMessage(nowplaying.New(ch, *t))
			e.Track = &m
		}
		out = append(out, e)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Warn("feed: failed to write now-playing snapshot", "err", err)
	}
}

// ServeFeed upgrades to a WebSocket and streams announcements of the channel
// named by the "channel" query parameter (default FIP). The current track is
// sent right after connecting when known.
func (h *Handler) ServeFeed(w http.ResponseWriter, r *http.Request) {
	ch, err := catalog.Resolve(r.URL.Query().Get("channel"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Debug("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Inbound messages are ignored; ctx ends when the client goes away.
	ctx := conn.CloseRead(r.Context())

	c := &client{
		out:  make(chan Message, clientBuffer),
		done: make(chan struct{}),
	}
	dest := "feed:" + strconv.FormatUint(h.nextID.Add(1), 10)
	sub := h.registry.Subscribe(dest, ch, c)
	defer h.registry.Remove(sub)
	defer c.close()

	if h.metrics != nil {
		h.metrics.FeedClients.Add(ctx, 1)
		defer h.metrics.FeedClients.Add(context.WithoutCancel(ctx), -1)
	}

	log := slog.With("destination", dest, "channel", ch.String())
	log.Debug("feed: client connected")

	if err := h.primer.Prime(ctx, ch, c); err != nil {
		log.Debug("feed: failed to send current track", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("feed: client disconnected")
			return
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("feed: write failed", "err", err)
				return
			}
		}
	}
}

// client is the subscription sink of one WebSocket connection. Writes happen
// on the connection's handler goroutine; the sink only queues.
type client struct {
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

// Compile-time interface assertion.
var _ subscription.Sink = (*client)(nil)

func (c *client) Announce(ctx context.Context, a nowplaying.Announcement) error {
	return c.enqueue(ctx, TrackMessage(a))
}

func (c *client) Notify(ctx context.Context, text string) error {
	return c.enqueue(ctx, Message{Type: TypeNotice, Text: text})
}

func (c *client) enqueue(ctx context.Context, m Message) error {
	select {
	case <-c.done:
		return errClientGone
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case c.out <- m:
		return nil
	case <-c.done:
		return errClientGone
	default:
		return ErrSlowClient
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
