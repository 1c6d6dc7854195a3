// Package observe provides application-wide observability primitives for
// radiobridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all radiobridge metrics.
const meterName = "github.com/MrWong99/radiobridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// MetadataFetchDuration tracks Radio France now-playing latency. Use with
	// attributes:
	//   attribute.String("channel", ...), attribute.String("status", ...)
	MetadataFetchDuration metric.Float64Histogram

	// Refreshes counts live state refresh attempts by channel and outcome
	// ("changed", "unchanged", "error").
	Refreshes metric.Int64Counter

	// Deliveries counts announcement deliveries by channel and status.
	Deliveries metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes by breaker name
	// and target state.
	BreakerTransitions metric.Int64Counter

	// SessionsEnded counts relay sessions that reached Ended, by reason.
	SessionsEnded metric.Int64Counter

	// ActiveSessions tracks the number of live relay sessions.
	ActiveSessions metric.Int64UpDownCounter

	// FeedClients tracks connected WebSocket feed clients.
	FeedClients metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for calls
// to the metadata APIs.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MetadataFetchDuration, err = m.Float64Histogram("radiobridge.metadata.fetch.duration",
		metric.WithDescription("Latency of now-playing fetches."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Refreshes, err = m.Int64Counter("radiobridge.livestate.refreshes",
		metric.WithDescription("Live state refresh attempts by channel and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Deliveries, err = m.Int64Counter("radiobridge.announcements.deliveries",
		metric.WithDescription("Announcement deliveries by channel and status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("radiobridge.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and state."),
	); err != nil {
		return nil, err
	}
	if met.SessionsEnded, err = m.Int64Counter("radiobridge.sessions.ended",
		metric.WithDescription("Relay sessions ended by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("radiobridge.active_sessions",
		metric.WithDescription("Number of live relay sessions."),
	); err != nil {
		return nil, err
	}
	if met.FeedClients, err = m.Int64UpDownCounter("radiobridge.feed.clients",
		metric.WithDescription("Number of connected WebSocket feed clients."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("radiobridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordFetch records the latency and outcome of one now-playing fetch.
func (m *Metrics) RecordFetch(ctx context.Context, channel string, d time.Duration, err error) {
	m.MetadataFetchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status(err)),
		),
	)
}

// RecordRefresh counts one live state refresh.
func (m *Metrics) RecordRefresh(ctx context.Context, channel, outcome string) {
	m.Refreshes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordDelivery counts one announcement delivery to a destination.
func (m *Metrics) RecordDelivery(ctx context.Context, channel string, err error) {
	m.Deliveries.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status(err)),
		),
	)
}

// RecordBreakerTransition counts a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordSessionEnd counts a relay session ending for reason.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string) {
	m.SessionsEnded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}
