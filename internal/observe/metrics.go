// Package observe provides application-wide observability primitives for the
// scribe service: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all scribe metrics.
const meterName = "github.com/Escorpio024/scribe-ia-aurora"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks speech-to-text transcription latency per
	// recording.
	TranscribeDuration metric.Float64Histogram

	// StageDuration tracks per-stage pipeline latency. Use with attribute:
	//   attribute.String("stage", ...) one of normalize, route, extract,
	//   draft, canonicalize, augment.
	StageDuration metric.Float64Histogram

	// LLMDuration tracks LLM inference latency.
	LLMDuration metric.Float64Histogram

	// RetrievalDuration tracks evidence retrieval latency.
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Drafts counts generated records by outcome ("ok", "degraded",
	// "fallback") and template.
	Drafts metric.Int64Counter

	// RetrievedCases counts evidence cases returned to callers, by template.
	RetrievedCases metric.Int64Counter

	// LLMTokens counts prompt and completion tokens. Use with attribute:
	//   attribute.String("direction", "prompt"|"completion")
	LLMTokens metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// OpenEncounters tracks the number of encounters currently open in memory.
	OpenEncounters metric.Int64UpDownCounter

	// ActiveStreams tracks the number of live websocket transcript streams.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The lower
// buckets cover the rule-based stages, the upper ones whole-recording
// transcription and remote model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("scribe.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription per recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("scribe.pipeline.stage.duration",
		metric.WithDescription("Latency of each pipeline stage by stage name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("scribe.llm.duration",
		metric.WithDescription("Latency of LLM inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("scribe.retrieval.duration",
		metric.WithDescription("Latency of evidence retrieval."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("scribe.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Drafts, err = m.Int64Counter("scribe.drafts",
		metric.WithDescription("Total generated records by outcome and template."),
	); err != nil {
		return nil, err
	}
	if met.RetrievedCases, err = m.Int64Counter("scribe.retrieval.cases",
		metric.WithDescription("Total evidence cases returned, by template."),
	); err != nil {
		return nil, err
	}
	if met.LLMTokens, err = m.Int64Counter("scribe.llm.tokens",
		metric.WithDescription("Total LLM tokens by direction."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("scribe.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.OpenEncounters, err = m.Int64UpDownCounter("scribe.open_encounters",
		metric.WithDescription("Number of encounters currently open."),
	); err != nil {
		return nil, err
	}
	if met.ActiveStreams, err = m.Int64UpDownCounter("scribe.active_streams",
		metric.WithDescription("Number of live websocket transcript streams."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("scribe.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordDraft records a generated record with its pipeline outcome and the
// routed template.
func (m *Metrics) RecordDraft(ctx context.Context, outcome, template string) {
	m.Drafts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("template", template),
		),
	)
}

// RecordStage records the latency of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordRetrieval records retrieval latency and the number of cases returned.
func (m *Metrics) RecordRetrieval(ctx context.Context, template string, seconds float64, cases int) {
	attrs := metric.WithAttributes(attribute.String("template", template))
	m.RetrievalDuration.Record(ctx, seconds, attrs)
	m.RetrievedCases.Add(ctx, int64(cases), attrs)
}

// RecordLLMTokens records prompt and completion token usage for one call.
func (m *Metrics) RecordLLMTokens(ctx context.Context, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokens.Add(ctx, int64(prompt),
			metric.WithAttributes(attribute.String("direction", "prompt")))
	}
	if completion > 0 {
		m.LLMTokens.Add(ctx, int64(completion),
			metric.WithAttributes(attribute.String("direction", "completion")))
	}
}
