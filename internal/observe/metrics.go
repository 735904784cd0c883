// Package observe provides application-wide observability for Mirrorcast:
// OpenTelemetry metrics, distributed tracing, structured logging helpers,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so everything remains
// scrapeable via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Mirrorcast
// metrics.
const meterName = "github.com/mirrorcast/mirrorcast"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// ASRDuration tracks speech recognition latency per turn.
	ASRDuration metric.Float64Histogram

	// LLMDuration tracks dialogue model latency per turn.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis latency per chunk.
	TTSDuration metric.Float64Histogram

	// LipSyncDuration tracks lip-sync video generation latency per chunk.
	LipSyncDuration metric.Float64Histogram

	// ChunkDuration tracks total per-chunk generation latency (TTS plus
	// lip-sync plus storage).
	ChunkDuration metric.Float64Histogram

	// TurnDuration tracks whole-turn wall time from upload to terminal event.
	TurnDuration metric.Float64Histogram

	// TimeToFirstFrame tracks latency from turn start to the first
	// video_chunk event.
	TimeToFirstFrame metric.Float64Histogram

	// --- Counters ---

	// SSEEvents counts emitted stream events. Use with attribute:
	//   attribute.String("event", ...)
	SSEEvents metric.Int64Counter

	// AdapterErrors counts inference adapter failures. Use with attributes:
	//   attribute.String("adapter", ...), attribute.String("kind", ...)
	AdapterErrors metric.Int64Counter

	// VideoBytesServed counts bytes delivered by the artifact range server.
	VideoBytesServed metric.Int64Counter

	// --- Artifact delivery ---

	// VideoTTFB tracks the range server's time to first byte.
	VideoTTFB metric.Float64Histogram

	// VideoThroughput tracks artifact delivery throughput in bytes per
	// second.
	VideoThroughput metric.Float64Histogram

	// --- Gauges ---

	// ActiveTurns tracks the number of turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// GPU inference latencies: single stages run tens of milliseconds to a few
// seconds, whole turns up to tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	hist := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.ASRDuration, err = hist("mirrorcast.asr.duration",
		"Latency of speech recognition per turn."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = hist("mirrorcast.llm.duration",
		"Latency of dialogue model inference per turn."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = hist("mirrorcast.tts.duration",
		"Latency of speech synthesis per chunk."); err != nil {
		return nil, err
	}
	if met.LipSyncDuration, err = hist("mirrorcast.lipsync.duration",
		"Latency of lip-sync video generation per chunk."); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = hist("mirrorcast.chunk.duration",
		"Total per-chunk generation latency."); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = hist("mirrorcast.turn.duration",
		"Whole-turn wall time from upload to terminal event."); err != nil {
		return nil, err
	}
	if met.TimeToFirstFrame, err = hist("mirrorcast.turn.time_to_first_frame",
		"Latency from turn start to the first video_chunk event."); err != nil {
		return nil, err
	}
	if met.VideoTTFB, err = hist("mirrorcast.video.ttfb",
		"Range server time to first byte."); err != nil {
		return nil, err
	}

	if met.SSEEvents, err = m.Int64Counter("mirrorcast.sse.events",
		metric.WithDescription("Total stream events emitted by event kind."),
	); err != nil {
		return nil, err
	}
	if met.AdapterErrors, err = m.Int64Counter("mirrorcast.adapter.errors",
		metric.WithDescription("Total inference adapter failures by adapter and error kind."),
	); err != nil {
		return nil, err
	}
	if met.VideoBytesServed, err = m.Int64Counter("mirrorcast.video.bytes_served",
		metric.WithDescription("Total bytes delivered by the artifact range server."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if met.VideoThroughput, err = m.Float64Histogram("mirrorcast.video.throughput",
		metric.WithDescription("Artifact delivery throughput."),
		metric.WithUnit("By/s"),
	); err != nil {
		return nil, err
	}

	if met.ActiveTurns, err = m.Int64UpDownCounter("mirrorcast.active_turns",
		metric.WithDescription("Number of turns currently in flight."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("mirrorcast.http.request.duration",
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

// RecordSSEEvent records one emitted stream event.
func (m *Metrics) RecordSSEEvent(ctx context.Context, event string) {
	m.SSEEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("event", event)),
	)
}

// RecordAdapterError records one inference adapter failure.
func (m *Metrics) RecordAdapterError(ctx context.Context, adapter, kind string) {
	m.AdapterErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("adapter", adapter),
			attribute.String("kind", kind),
		),
	)
}

// RecordVideoServe records one artifact delivery: time to first byte, bytes
// sent and effective throughput over the response duration.
func (m *Metrics) RecordVideoServe(ctx context.Context, ttfbSeconds, totalSeconds float64, bytes int64) {
	m.VideoTTFB.Record(ctx, ttfbSeconds)
	m.VideoBytesServed.Add(ctx, bytes)
	if totalSeconds > 0 {
		m.VideoThroughput.Record(ctx, float64(bytes)/totalSeconds)
	}
}
