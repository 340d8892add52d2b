// Package observe provides murmur's observability primitives: OpenTelemetry
// metric instruments for the capture pipeline, tracing helpers and HTTP
// middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus by the exporter set up in [InitProvider]. Tests should build
// their own [Metrics] with [NewMetrics] and a manual reader instead of using
// [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of all murmur metrics.
const meterName = "github.com/MrWong99/murmur"

// Metrics holds all metric instruments. The instruments are safe for
// concurrent use.
type Metrics struct {
	// --- Capture ---

	// CaptureDroppedSamples counts interleaved samples discarded because the
	// capture ring was full.
	CaptureDroppedSamples metric.Int64Counter

	// --- Segmentation ---

	// SegmentsStarted counts speech segments opened by the segmenter.
	SegmentsStarted metric.Int64Counter

	// SegmentsEnded counts finished speech segments.
	SegmentsEnded metric.Int64Counter

	// SegmentDuration tracks the audio length of finished segments.
	SegmentDuration metric.Float64Histogram

	// SegmentDroppedSamples counts segment audio lost to a full output ring.
	SegmentDroppedSamples metric.Int64Counter

	// --- Transcription ---

	// TranscriptionDuration tracks transcriber latency per segment.
	TranscriptionDuration metric.Float64Histogram

	// TranscriberErrors counts failed transcriptions. Attribute: provider.
	TranscriberErrors metric.Int64Counter

	// Corrections counts vocabulary substitutions applied to transcripts.
	Corrections metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// provider, state.
	BreakerTransitions metric.Int64Counter

	// --- Notifications ---

	// NotifyErrors counts failed sink deliveries. Attribute: event.
	NotifyErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a capture session runs.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request latency. Attributes: method,
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for transcription
// latency.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// segmentBuckets are histogram boundaries in seconds for segment lengths,
// capped at whisper's 30 s window.
var segmentBuckets = []float64{
	0.25, 0.5, 1, 2, 3, 5, 8, 12, 20, 30,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CaptureDroppedSamples, err = m.Int64Counter("murmur.capture.dropped_samples",
		metric.WithDescription("Interleaved samples dropped because the capture ring was full."),
		metric.WithUnit("{sample}"),
	); err != nil {
		return nil, err
	}

	if met.SegmentsStarted, err = m.Int64Counter("murmur.segments.started",
		metric.WithDescription("Speech segments started."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEnded, err = m.Int64Counter("murmur.segments.ended",
		metric.WithDescription("Speech segments finished."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("murmur.segment.duration",
		metric.WithDescription("Audio length of finished speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDroppedSamples, err = m.Int64Counter("murmur.segment.dropped_samples",
		metric.WithDescription("Segment samples dropped because the output ring was full."),
		metric.WithUnit("{sample}"),
	); err != nil {
		return nil, err
	}

	if met.TranscriptionDuration, err = m.Float64Histogram("murmur.transcription.duration",
		metric.WithDescription("Latency of segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriberErrors, err = m.Int64Counter("murmur.transcriber.errors",
		metric.WithDescription("Failed transcriptions by provider."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("murmur.transcript.corrections",
		metric.WithDescription("Vocabulary corrections applied to transcripts."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("murmur.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	if met.NotifyErrors, err = m.Int64Counter("murmur.notify.errors",
		metric.WithDescription("Failed notification deliveries by event."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("murmur.active_sessions",
		metric.WithDescription("Number of running capture sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("murmur.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. It panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSegmentEnd counts a finished segment of the given audio length.
func (m *Metrics) RecordSegmentEnd(ctx context.Context, length time.Duration) {
	m.SegmentsEnded.Add(ctx, 1)
	m.SegmentDuration.Record(ctx, length.Seconds())
}

// RecordTranscription records the latency of one transcription and counts it
// as an error when err is non-nil.
func (m *Metrics) RecordTranscription(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.TranscriberErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
	m.TranscriptionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("provider", provider), Attr("status", status)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("state", state)))
}

// RecordNotifyError counts a failed notification.
func (m *Metrics) RecordNotifyError(ctx context.Context, event string) {
	m.NotifyErrors.Add(ctx, 1, metric.WithAttributes(Attr("event", event)))
}
