// Package observe provides application-wide observability primitives for
// the kiosk server: OpenTelemetry metrics, distributed tracing, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kiosk metrics.
const meterName = "github.com/omkarlalla-code/kiosk-project"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TurnDuration tracks full conversation-turn latency.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks language model inference latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech latency, cache hits included. Use
	// with attribute.String("tier", ...).
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// TTSCacheLookups counts audio cache lookups. Use with
	// attribute.String("outcome", "hit"|"miss").
	TTSCacheLookups metric.Int64Counter

	// SynthInvocations counts real synthesiser invocations by tier.
	SynthInvocations metric.Int64Counter

	// ScheduledMessages counts control messages handed to the datachannel
	// router. Use with attribute.String("type", ...).
	ScheduledMessages metric.Int64Counter

	// DroppedMessages counts scheduled messages dropped because their room
	// was gone.
	DroppedMessages metric.Int64Counter

	// SessionEnds counts session terminations by reason.
	SessionEnds metric.Int64Counter

	// TurnErrors counts failed turns by kind ("upstream_llm", "tts_error",
	// "session_not_found").
	TurnErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live kiosk sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversation-turn latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("kiosk.turn.duration",
		metric.WithDescription("Latency of one full conversation turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("kiosk.llm.duration",
		metric.WithDescription("Latency of language model inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("kiosk.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis by tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TTSCacheLookups, err = m.Int64Counter("kiosk.tts.cache.lookups",
		metric.WithDescription("Audio cache lookups by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SynthInvocations, err = m.Int64Counter("kiosk.tts.synth.invocations",
		metric.WithDescription("Real synthesiser invocations by tier."),
	); err != nil {
		return nil, err
	}
	if met.ScheduledMessages, err = m.Int64Counter("kiosk.dispatch.scheduled",
		metric.WithDescription("Control messages scheduled by type."),
	); err != nil {
		return nil, err
	}
	if met.DroppedMessages, err = m.Int64Counter("kiosk.dispatch.dropped",
		metric.WithDescription("Scheduled messages dropped for gone rooms."),
	); err != nil {
		return nil, err
	}
	if met.SessionEnds, err = m.Int64Counter("kiosk.session.ends",
		metric.WithDescription("Session terminations by reason."),
	); err != nil {
		return nil, err
	}
	if met.TurnErrors, err = m.Int64Counter("kiosk.turn.errors",
		metric.WithDescription("Failed conversation turns by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("kiosk.active_sessions",
		metric.WithDescription("Number of live kiosk sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("kiosk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics init: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage is a convenience for the common histogram+attribute pattern.
func RecordStage(ctx context.Context, h metric.Float64Histogram, seconds float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.Record(ctx, seconds, metric.WithAttributes(attrs...))
}
