// Package observe ties together the observability concerns of ankivoice:
// OpenTelemetry metrics and tracing, structured logging, and the HTTP
// middleware that feeds them.
//
// Metrics go through the OpenTelemetry Metrics API and are exposed for
// Prometheus scraping via [InitProvider]. Production code shares the
// package-level [DefaultMetrics] instance; tests should build their own with
// [NewMetrics] and a private [metric.MeterProvider].
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every ankivoice metric.
const meterName = "github.com/ankivoice/ankivoice"

// Metrics bundles the application's metric instruments. The OTel instrument
// types are individually safe for concurrent use.
type Metrics struct {
	// Per-stage latency of the voice review pipeline.
	STTDuration           metric.Float64Histogram
	LLMDuration           metric.Float64Histogram
	AnkiDuration          metric.Float64Histogram
	ToolExecutionDuration metric.Float64Histogram

	// IntentsClassified counts utterances by "kind" attribute: "grade",
	// "question", or "ambiguous".
	IntentsClassified metric.Int64Counter

	// AnswersSubmitted counts cards answered by voice, "ease" attribute
	// "1".."4".
	AnswersSubmitted metric.Int64Counter

	// CorrectionsApplied counts transcript corrections, "method" attribute
	// "phonetic" or "llm".
	CorrectionsApplied metric.Int64Counter

	// ProviderRequests counts backend API calls by provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ToolCalls counts tool invocations by tool name and status.
	ToolCalls metric.Int64Counter

	// ProviderErrors counts backend failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// ActiveVoiceSessions is the number of live voice review sessions.
	ActiveVoiceSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by the server middleware, keyed by
	// method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets cover the voice pipeline's range, from sub-frame audio work
// to multi-second LLM calls. Boundaries are in seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// instruments creates instruments on one meter, remembering the first error
// so NewMetrics can register everything without an if-chain per instrument.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if in.err == nil {
		in.err = err
	}
	return h
}

func (in *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc))
	if in.err == nil {
		in.err = err
	}
	return c
}

// NewMetrics registers every ankivoice instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	in := &instruments{meter: mp.Meter(meterName)}

	met := &Metrics{
		STTDuration: in.latency("ankivoice.stt.duration",
			"Latency of speech-to-text transcription."),
		LLMDuration: in.latency("ankivoice.llm.duration",
			"Latency of LLM inference."),
		AnkiDuration: in.latency("ankivoice.anki.duration",
			"Latency of AnkiConnect and bridge requests."),
		ToolExecutionDuration: in.latency("ankivoice.tool_execution.duration",
			"Latency of MCP tool execution."),

		IntentsClassified: in.counter("ankivoice.intents.classified",
			"Total classified utterances by intent kind."),
		AnswersSubmitted: in.counter("ankivoice.answers.submitted",
			"Total cards answered via voice by ease."),
		CorrectionsApplied: in.counter("ankivoice.corrections.applied",
			"Total transcript corrections by method."),
		ProviderRequests: in.counter("ankivoice.provider.requests",
			"Total provider API requests by provider, kind, and status."),
		ToolCalls: in.counter("ankivoice.tool.calls",
			"Total tool invocations by tool name and status."),
		ProviderErrors: in.counter("ankivoice.provider.errors",
			"Total provider errors by provider and kind."),
	}

	var err error
	met.ActiveVoiceSessions, err = in.meter.Int64UpDownCounter("ankivoice.active_voice_sessions",
		metric.WithDescription("Number of live voice review sessions."))
	if in.err == nil {
		in.err = err
	}

	// HTTP latency keeps the SDK default buckets; the ones above are tuned
	// for pipeline stages, not request handling.
	met.HTTPRequestDuration, err = in.meter.Float64Histogram("ankivoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"))
	if in.err == nil {
		in.err = err
	}

	if in.err != nil {
		return nil, in.err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared [Metrics] instance, built on first use
// from [otel.GetMeterProvider]. Instrument creation cannot fail with the
// global provider, so a failure here panics.
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

// Attr shortens [attribute.String] at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordIntent counts one classified utterance.
func (m *Metrics) RecordIntent(ctx context.Context, kind string) {
	m.IntentsClassified.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind)))
}

// RecordAnswer counts one card answered by voice.
func (m *Metrics) RecordAnswer(ctx context.Context, ease int) {
	m.AnswersSubmitted.Add(ctx, 1, metric.WithAttributes(Attr("ease", strconv.Itoa(ease))))
}

// RecordCorrection counts one applied transcript correction.
func (m *Metrics) RecordCorrection(ctx context.Context, method string) {
	m.CorrectionsApplied.Add(ctx, 1, metric.WithAttributes(Attr("method", method)))
}

// RecordProviderRequest counts one backend API call with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordToolCall counts one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		Attr("tool", tool),
		Attr("status", status),
	))
}

// RecordProviderError counts one backend failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}
