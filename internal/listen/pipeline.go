package listen

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/segment"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/capture"
	"github.com/MrWong99/murmur/pkg/audio/resample"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// pipeline is the processing goroutine's state: it turns buffered device
// audio into classified frames and feeds them to the segmenter. Nothing in
// it is shared with other goroutines except the driver's ring (as consumer)
// and the segmenter's output ring (as producer).
type pipeline struct {
	drv      *capture.Driver
	rs       *resample.Resampler
	cls      vad.Classifier
	seg      *segment.Segmenter
	metrics  *observe.Metrics
	channels int

	in   []float32 // interleaved device samples
	mono []float32
	out  []float32 // one target-rate frame
	pcm  []int16

	captureDropped uint64
	segmentDropped uint64
}

func newPipeline(drv *capture.Driver, rs *resample.Resampler, cls vad.Classifier, seg *segment.Segmenter, m *observe.Metrics) *pipeline {
	ch := drv.Config().Channels
	maxIn := rs.MaxInputFrames()
	return &pipeline{
		drv:      drv,
		rs:       rs,
		cls:      cls,
		seg:      seg,
		metrics:  m,
		channels: ch,
		in:       make([]float32, maxIn*ch),
		mono:     make([]float32, maxIn),
		out:      make([]float32, rs.OutFrames()),
		pcm:      make([]int16, rs.OutFrames()),
	}
}

// run processes audio until ctx is cancelled or a fatal error occurs. Fatal
// errors, including recovered panics, are passed to fail. Events are
// delivered through emit, which returns false once the session is shutting
// down.
func (p *pipeline) run(ctx context.Context, emit func(segment.Event) bool, fail func(error)) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				fail(&Error{Kind: KindContractViolation, Err: err})
				return
			}
			fail(newError(KindContractViolation, "panic: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-p.drv.Errors():
			fail(&Error{Kind: KindAudioStream, Err: err})
			return
		case <-p.drv.Wake():
		}
		if err := p.drain(ctx, emit); err != nil {
			fail(err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// drain processes frames while the ring holds enough input for the next one.
func (p *pipeline) drain(ctx context.Context, emit func(segment.Event) bool) error {
	rb := p.drv.Ring()
	for {
		need := p.rs.InputFramesRequired() * p.channels
		// Publish before checking so a callback that lands in between
		// still wakes us.
		p.drv.SetRequired(need)
		if rb.Len() < need {
			p.recordDrops(ctx)
			return nil
		}

		in := p.in[:need]
		if err := rb.PopExact(in); err != nil {
			return newError(KindContractViolation, "capture ring: %w", err)
		}
		mono, err := audio.Downmix(p.mono, in, p.channels)
		if err != nil {
			return newError(KindContractViolation, "%w", err)
		}
		p.rs.Process(mono, p.out)
		audio.ToPCM16(p.pcm, p.out)

		speech, err := p.cls.Predict(p.pcm)
		if err != nil {
			return newError(KindContractViolation, "classifier: %w", err)
		}
		ev, ok := p.seg.Push(p.pcm, speech)
		if !ok {
			continue
		}
		if ev.Kind == segment.SpeechStart {
			p.metrics.SegmentsStarted.Add(ctx, 1)
		}
		if !emit(ev) {
			return nil
		}
	}
}

// recordDrops reports overflow growth since the last call. The audio
// callback only counts; logging happens here.
func (p *pipeline) recordDrops(ctx context.Context) {
	if d := p.drv.Ring().Dropped(); d > p.captureDropped {
		delta := d - p.captureDropped
		p.captureDropped = d
		slog.Warn("listen: capture ring overflow, audio dropped",
			"samples", delta,
			"total", d,
		)
		p.metrics.CaptureDroppedSamples.Add(ctx, int64(delta),
			metric.WithAttributes(observe.Attr("device", p.drv.Device().Name)))
	}
	if d := p.seg.Dropped(); d > p.segmentDropped {
		p.metrics.SegmentDroppedSamples.Add(ctx, int64(d-p.segmentDropped))
		p.segmentDropped = d
	}
}

func (p *pipeline) String() string {
	return fmt.Sprintf("%s -> %dHz/%d", p.drv.Config(), p.rs.OutRate(), p.rs.OutFrames())
}
