package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestStageHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"mirrorcast.asr.duration", m.ASRDuration},
		{"mirrorcast.llm.duration", m.LLMDuration},
		{"mirrorcast.tts.duration", m.TTSDuration},
		{"mirrorcast.lipsync.duration", m.LipSyncDuration},
		{"mirrorcast.chunk.duration", m.ChunkDuration},
		{"mirrorcast.turn.duration", m.TurnDuration},
		{"mirrorcast.turn.time_to_first_frame", m.TimeToFirstFrame},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		md := findMetric(rm, tc.name)
		if md == nil {
			t.Errorf("metric %s not found", tc.name)
			continue
		}
		hist, ok := md.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Errorf("metric %s: unexpected data type %T", tc.name, md.Data)
			continue
		}
		if got := hist.DataPoints[0].Count; got != 2 {
			t.Errorf("metric %s: count = %d, want 2", tc.name, got)
		}
	}
}

func TestRecordSSEEvent(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSSEEvent(ctx, "video_chunk")
	m.RecordSSEEvent(ctx, "video_chunk")
	m.RecordSSEEvent(ctx, "complete")

	md := findMetric(collect(t, reader), "mirrorcast.sse.events")
	if md == nil {
		t.Fatal("metric mirrorcast.sse.events not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 3 {
		t.Errorf("total events = %d, want 3", total)
	}
}

func TestRecordVideoServe(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVideoServe(ctx, 0.01, 0.5, 1_000_000)

	rm := collect(t, reader)
	if md := findMetric(rm, "mirrorcast.video.ttfb"); md == nil {
		t.Error("metric mirrorcast.video.ttfb not found")
	}
	md := findMetric(rm, "mirrorcast.video.bytes_served")
	if md == nil {
		t.Fatal("metric mirrorcast.video.bytes_served not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if got := sum.DataPoints[0].Value; got != 1_000_000 {
		t.Errorf("bytes served = %d, want 1000000", got)
	}
	if md := findMetric(rm, "mirrorcast.video.throughput"); md == nil {
		t.Error("metric mirrorcast.video.throughput not found")
	}
}

func TestActiveTurnsUpDown(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveTurns.Add(ctx, 1)
	m.ActiveTurns.Add(ctx, 1)
	m.ActiveTurns.Add(ctx, -1)

	md := findMetric(collect(t, reader), "mirrorcast.active_turns")
	if md == nil {
		t.Fatal("metric mirrorcast.active_turns not found")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("active turns = %d, want 1", got)
	}
}
