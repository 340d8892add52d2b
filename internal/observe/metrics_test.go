package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns Metrics backed by a ManualReader.
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// sumValue returns the value of the int64 sum data point carrying attr, or
// the first data point when attr is empty.
func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr ...attribute.KeyValue) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if len(attr) == 0 {
			return dp.Value
		}
		match := true
		for _, kv := range attr {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				match = false
			}
		}
		if match {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %v", name, attr)
	return 0
}

func histCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want Histogram[float64]", name, met.Data)
	}
	var n uint64
	for _, dp := range hist.DataPoints {
		n += dp.Count
	}
	return n
}

func TestRecordSegmentEnd(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SegmentsStarted.Add(ctx, 2)
	m.RecordSegmentEnd(ctx, 1200*time.Millisecond)
	m.RecordSegmentEnd(ctx, 3*time.Second)

	rm := collect(t, reader)
	if got := sumValue(t, rm, "murmur.segments.started"); got != 2 {
		t.Errorf("segments started = %d, want 2", got)
	}
	if got := sumValue(t, rm, "murmur.segments.ended"); got != 2 {
		t.Errorf("segments ended = %d, want 2", got)
	}
	if got := histCount(t, rm, "murmur.segment.duration"); got != 2 {
		t.Errorf("segment duration samples = %d, want 2", got)
	}
}

func TestRecordTranscription(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, "whisper", 300*time.Millisecond, nil)
	m.RecordTranscription(ctx, "whisper", time.Second, errors.New("boom"))
	m.RecordTranscription(ctx, "openai", time.Second, errors.New("boom"))

	rm := collect(t, reader)
	if got := histCount(t, rm, "murmur.transcription.duration"); got != 3 {
		t.Errorf("transcription samples = %d, want 3", got)
	}
	if got := sumValue(t, rm, "murmur.transcriber.errors", Attr("provider", "whisper")); got != 1 {
		t.Errorf("whisper errors = %d, want 1", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.CaptureDroppedSamples.Add(ctx, 480)
	m.SegmentDroppedSamples.Add(ctx, 100)
	m.Corrections.Add(ctx, 3)
	m.RecordBreakerTransition(ctx, "whisper", "open")
	m.RecordNotifyError(ctx, "stt_final")
	m.RecordNotifyError(ctx, "stt_final")
	m.ActiveSessions.Add(ctx, 1)

	rm := collect(t, reader)
	tests := []struct {
		name string
		attr []attribute.KeyValue
		want int64
	}{
		{name: "murmur.capture.dropped_samples", want: 480},
		{name: "murmur.segment.dropped_samples", want: 100},
		{name: "murmur.transcript.corrections", want: 3},
		{name: "murmur.breaker.transitions", attr: []attribute.KeyValue{Attr("provider", "whisper"), Attr("state", "open")}, want: 1},
		{name: "murmur.notify.errors", attr: []attribute.KeyValue{Attr("event", "stt_final")}, want: 2},
		{name: "murmur.active_sessions", want: 1},
	}
	for _, tt := range tests {
		if got := sumValue(t, rm, tt.name, tt.attr...); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}
