// Package observe provides application-wide observability primitives for
// Talvox: OpenTelemetry metrics, tracing helpers, and structured logging
// enrichment.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via a standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Talvox metrics.
const meterName = "github.com/talvox/talvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks LLM response generation latency.
	GenerationDuration metric.Float64Histogram

	// SpeakDuration tracks utterance playback time from speak request to
	// completion detection.
	SpeakDuration metric.Float64Histogram

	// HTTPRequestDuration tracks diagnostic HTTP endpoint latency. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Distribution histograms ---

	// NegotiationAttempts tracks how many pause/resume attempts each
	// negotiation consumed. Use with attributes:
	//   attribute.String("op", "pause"|"resume"), attribute.String("outcome", ...)
	NegotiationAttempts metric.Int64Histogram

	// --- Counters ---

	// Utterances counts synthesis requests. Use with attribute:
	//   attribute.String("source", "reply"|"greeting")
	Utterances metric.Int64Counter

	// VoiceModeTurns counts completed hands-free turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	VoiceModeTurns metric.Int64Counter

	// StaleEvents counts discarded stale completion/generation events.
	// Use with attribute: attribute.String("kind", ...)
	StaleEvents metric.Int64Counter

	// --- Gauges ---

	// ActiveVoiceSessions tracks the number of live chat-window voice
	// sessions.
	ActiveVoiceSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-loop latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// attemptBuckets covers the bounded negotiation retry loop (default max 5).
var attemptBuckets = []float64{0, 1, 2, 3, 4, 5, 10}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GenerationDuration, err = m.Float64Histogram("talvox.generation.duration",
		metric.WithDescription("Latency of LLM response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeakDuration, err = m.Float64Histogram("talvox.speak.duration",
		metric.WithDescription("Utterance duration from speak request to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("talvox.http.request.duration",
		metric.WithDescription("Latency of diagnostic HTTP requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NegotiationAttempts, err = m.Int64Histogram("talvox.voice.negotiation.attempts",
		metric.WithDescription("Pause/resume attempts consumed per negotiation by op and outcome."),
		metric.WithExplicitBucketBoundaries(attemptBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("talvox.voice.utterances",
		metric.WithDescription("Total synthesis requests by source."),
	); err != nil {
		return nil, err
	}
	if met.VoiceModeTurns, err = m.Int64Counter("talvox.voice.turns",
		metric.WithDescription("Completed hands-free voice turns by status."),
	); err != nil {
		return nil, err
	}
	if met.StaleEvents, err = m.Int64Counter("talvox.voice.stale_events",
		metric.WithDescription("Discarded stale completion or generation events by kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveVoiceSessions, err = m.Int64UpDownCounter("talvox.voice.active_sessions",
		metric.WithDescription("Number of live chat-window voice sessions."),
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
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordNegotiation records one pause/resume negotiation with the number of
// backend attempts it consumed.
func (m *Metrics) RecordNegotiation(ctx context.Context, op, outcome string, attempts int) {
	m.NegotiationAttempts.Record(ctx, int64(attempts),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordUtterance records one synthesis request.
func (m *Metrics) RecordUtterance(ctx context.Context, source string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordTurn records one completed hands-free turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.VoiceModeTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordStaleEvent records one discarded stale event.
func (m *Metrics) RecordStaleEvent(ctx context.Context, kind string) {
	m.StaleEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}
