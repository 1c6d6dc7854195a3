// Package app wires all radiobridge subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds every subsystem from the
// config, Run executes the poller, the Discord bot and the optional HTTP
// server until the context is cancelled, and Shutdown tears everything down
// in order.
//
// For testing, inject fakes via functional options (WithFetcher, WithDiscord,
// WithDecoder, WithClock). When an option is not provided, New creates the
// real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/radiobridge/internal/config"
	"github.com/MrWong99/radiobridge/internal/discord"
	"github.com/MrWong99/radiobridge/internal/discord/commands"
	"github.com/MrWong99/radiobridge/internal/feed"
	"github.com/MrWong99/radiobridge/internal/health"
	"github.com/MrWong99/radiobridge/internal/livestate"
	"github.com/MrWong99/radiobridge/internal/metadata"
	"github.com/MrWong99/radiobridge/internal/observe"
	"github.com/MrWong99/radiobridge/internal/poller"
	"github.com/MrWong99/radiobridge/internal/relay"
	"github.com/MrWong99/radiobridge/internal/resilience"
	"github.com/MrWong99/radiobridge/internal/subscription"
	"github.com/MrWong99/radiobridge/pkg/audio"
)

// readyWindow is how long the poller may go without completing a pass before
// /readyz reports it as stalled. A pass over all eleven channels takes about
// eleven pacing intervals.
const readyWindow = 2 * time.Minute

// Discord is the chat platform surface the application drives. [*discord.Bot]
// implements it.
type Discord interface {
	Platform() audio.Platform
	Router() *discord.CommandRouter
	Sink(channelID string) subscription.Sink
	VoiceChannelOf(guildID, userID string) (string, bool)
	Ready() bool
	Run(ctx context.Context) error
	Close() error
}

var _ Discord = (*discord.Bot)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics  *observe.Metrics
	breaker  *resilience.CircuitBreaker
	fetcher  metadata.Fetcher
	store    *livestate.Store
	registry *subscription.Registry
	loop     *poller.Loop
	decoder  relay.Decoder
	sessions *relay.Manager
	bot      Discord
	radio    *commands.RadioCommands
	feed     *feed.Handler
	health   *health.Handler

	now            func() time.Time
	metricsHandler http.Handler
	server         *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithFetcher injects a now-playing fetcher instead of the Radio France client.
func WithFetcher(f metadata.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithDiscord injects the chat platform instead of connecting a bot.
func WithDiscord(d Discord) Option {
	return func(a *App) { a.bot = d }
}

// WithDecoder injects the stream decoder instead of the configured command.
func WithDecoder(d relay.Decoder) Option {
	return func(a *App) { a.decoder = d }
}

// WithClock overrides the clock used for track expiry.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Connecting to
// Discord happens here unless a [Discord] is injected.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Metadata ─────────────────────────────────────────────────────
	if err := a.initMetadata(); err != nil {
		return nil, fmt.Errorf("app: init metadata: %w", err)
	}

	// ── 2. Live state + subscriptions + poller ──────────────────────────
	a.store = livestate.NewStore(
		livestate.WithClock(a.now),
		livestate.WithMetrics(a.metrics),
	)
	a.registry = subscription.NewRegistry()
	a.loop = poller.New(a.store, a.registry, a.fetcher,
		poller.WithPacing(cfg.Poller.Pacing),
		poller.WithIdleInterval(cfg.Poller.IdleInterval),
		poller.WithDeliveryTimeout(cfg.Poller.DeliveryTimeout),
		poller.WithMetrics(a.metrics),
	)

	// ── 3. Discord ──────────────────────────────────────────────────────
	if a.bot == nil {
		bot, err := discord.New(ctx, discord.Config{
			Token:   cfg.Discord.Token,
			GuildID: cfg.Discord.GuildID,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init discord: %w", err)
		}
		a.bot = bot
	}

	// ── 4. Relay sessions ───────────────────────────────────────────────
	if a.decoder == nil {
		dec, err := relay.NewCommandDecoder(cfg.Relay.DecoderCommand)
		if err != nil {
			return nil, fmt.Errorf("app: init decoder: %w", err)
		}
		a.decoder = dec
	}
	a.sessions = relay.NewManager(a.bot.Platform(), a.decoder, a.registry, a.loop,
		relay.WithIdleCheckInterval(cfg.Relay.IdleCheckInterval),
		relay.WithMetrics(a.metrics),
	)

	// ── 5. Slash commands ───────────────────────────────────────────────
	a.radio = commands.NewRadioCommands(a.bot.Router(), commands.Config{
		Sessions:       a.sessions,
		Program:        a.loop,
		VoiceChannelOf: a.bot.VoiceChannelOf,
		SinkFor:        a.bot.Sink,
		Links: commands.Links{
			GitHub: cfg.Links.GitHub,
			Invite: cfg.Links.Invite,
		},
	})

	// ── 6. HTTP surfaces ────────────────────────────────────────────────
	a.feed = feed.NewHandler(a.registry, a.loop, a.store,
		feed.WithOriginPatterns(cfg.Feed.OriginPatterns...),
		feed.WithMetrics(a.metrics),
	)
	a.health = health.New(
		health.Flag("discord", a.bot.Ready),
		health.Freshness("poller", a.loop.LastPass, readyWindow, nil),
	)

	return a, nil
}

// initMetadata builds the Radio France client with its Last.fm breaker,
// unless a fetcher was injected.
func (a *App) initMetadata() error {
	if a.fetcher != nil {
		return nil
	}

	a.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "lastfm",
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Info("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})

	md := a.cfg.Metadata
	opts := []metadata.Option{
		metadata.WithTimeout(md.Timeout),
		metadata.WithEnrichmentBreaker(a.breaker),
		metadata.WithMetrics(a.metrics),
	}
	if md.RadioFrance.Endpoint != "" {
		opts = append(opts, metadata.WithRadioFranceEndpoint(md.RadioFrance.Endpoint))
	}
	if md.LastFM.Endpoint != "" {
		opts = append(opts, metadata.WithLastFMEndpoint(md.LastFM.Endpoint))
	}

	client, err := metadata.New(md.RadioFrance.APIKey, md.LastFM.APIKey, opts...)
	if err != nil {
		return err
	}
	a.fetcher = client
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Sessions returns the relay session manager.
func (a *App) Sessions() *relay.Manager { return a.sessions }

// Registry returns the subscription registry.
func (a *App) Registry() *subscription.Registry { return a.registry }

// Handler returns the HTTP handler serving health, metrics and the feed,
// wrapped in the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	a.feed.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the poller, the Discord bot and, when server.listen_addr is set,
// the HTTP server. It blocks until ctx is cancelled or a service fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.loop.Run(ctx) })
	g.Go(func() error {
		if err := a.bot.Run(ctx); err != nil {
			return fmt.Errorf("app: discord: %w", err)
		}
		return nil
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error { return a.serve() })
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr)
	return g.Wait()
}

func (a *App) serve() error {
	slog.Info("http server listening", "addr", a.server.Addr, "tls", a.cfg.Server.TLS != nil)
	var err error
	if tls := a.cfg.Server.TLS; tls != nil {
		err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	} else {
		err = a.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("app: http server: %w", err)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops every relay session and closes the Discord connection. It
// respects the context deadline while waiting for sessions to end.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", a.sessions.Len())

		if err := a.sessions.Shutdown(ctx); err != nil {
			slog.Warn("sessions did not stop in time", "err", err)
			errs = append(errs, err)
		}
		if err := a.bot.Close(); err != nil {
			slog.Warn("discord close error", "err", err)
			errs = append(errs, err)
		}

		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
