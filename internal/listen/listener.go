// Package listen runs the capture session: it opens the input device, turns
// its audio into speech segments, transcribes every finished segment and
// publishes the results.
//
// A session uses three goroutines. The capture driver's callback runs on
// the platform audio thread and only fills a ring buffer. The processing
// goroutine downmixes, resamples, classifies and segments that audio and
// emits [segment.Event]s. The goroutine that called [Listener.Run] is the
// event loop: it pops each finished segment from the output ring, calls the
// transcriber and notifies the sink. Transcription therefore never stalls
// the audio path; segments that finish while a transcription is in flight
// queue up in the output ring.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/murmur/internal/notify"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/segment"
	"github.com/MrWong99/murmur/internal/transcript"
	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/capture"
	"github.com/MrWong99/murmur/pkg/audio/resample"
	"github.com/MrWong99/murmur/pkg/audio/ring"
	"github.com/MrWong99/murmur/pkg/provider/stt"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Config holds the per-session settings.
type Config struct {
	// Device is the input device name. Empty selects the default device.
	Device string

	// MaxBuffer caps the device buffer duration. Zero keeps the driver's
	// choice of roughly 30 ms.
	MaxBuffer time.Duration

	// EndSilence, Linger and MaxSegment configure the segmenter; zero
	// values select its defaults. A negative MaxSegment disables the
	// segment length limit.
	EndSilence time.Duration
	Linger     time.Duration
	MaxSegment time.Duration

	// VADMode and VADThreshold are passed to the classifier engine.
	VADMode      int
	VADThreshold float64
}

// SessionInfo describes the running session.
type SessionInfo struct {
	ID        string
	Device    string
	Stream    audio.StreamConfig
	StartedAt time.Time
}

// Listener owns at most one capture session at a time. All methods are safe
// for concurrent use.
type Listener struct {
	host        capture.Host
	engine      vad.Engine
	transcriber stt.Transcriber
	sink        notify.Sink

	corrector    *transcript.Corrector
	metrics      *observe.Metrics
	provider     string
	keywordBoost float64

	mu   sync.Mutex
	sess *session
}

// Option configures a [Listener].
type Option func(*Listener)

// WithCorrector rewrites transcripts against c's vocabulary before they are
// published.
func WithCorrector(c *transcript.Corrector) Option {
	return func(l *Listener) { l.corrector = c }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithProviderName sets the transcriber name used in metrics and spans.
func WithProviderName(name string) Option {
	return func(l *Listener) { l.provider = name }
}

// WithKeywordBoost sets the boost passed along with vocabulary hints to
// transcribers that accept them.
func WithKeywordBoost(boost float64) Option {
	return func(l *Listener) { l.keywordBoost = boost }
}

// New creates a Listener. sink may be nil, in which case notifications are
// only logged.
func New(host capture.Host, engine vad.Engine, tr stt.Transcriber, sink notify.Sink, opts ...Option) (*Listener, error) {
	var errs []error
	if host == nil {
		errs = append(errs, errors.New("capture host is nil"))
	}
	if engine == nil {
		errs = append(errs, errors.New("vad engine is nil"))
	}
	if tr == nil {
		errs = append(errs, errors.New("transcriber is nil"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	if sink == nil {
		sink = notify.LogSink{}
	}

	l := &Listener{
		host:         host,
		engine:       engine,
		transcriber:  tr,
		sink:         sink,
		provider:     "stt",
		keywordBoost: 2,
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	if l.corrector != nil {
		l.pushKeywords()
	}
	return l, nil
}

// session is the handle of a running session.
type session struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Active reports whether a session is running.
func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess != nil
}

// Info returns the running session's description. ok is false when idle or
// while the session is still negotiating its device.
func (l *Listener) Info() (info SessionInfo, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess == nil || l.sess.info.Device == "" {
		return SessionInfo{}, false
	}
	return l.sess.info, true
}

// UpdateVocabulary replaces the correction vocabulary and forwards it as
// keyword hints to the transcriber when it accepts them. It is a no-op
// without a corrector.
func (l *Listener) UpdateVocabulary(names []string) {
	if l.corrector == nil {
		return
	}
	l.corrector.SetVocabulary(names)
	l.pushKeywords()
}

func (l *Listener) pushKeywords() {
	ks, ok := l.transcriber.(stt.KeywordSetter)
	if !ok {
		return
	}
	if err := ks.SetKeywords(l.corrector.Keywords(l.keywordBoost)); err != nil && !errors.Is(err, stt.ErrNotSupported) {
		slog.Warn("listen: failed to set transcriber keywords", "err", err)
	}
}

// Stop ends the running session and returns once it has fully shut down.
// It is a no-op when no session is running. Stop must not be called from a
// [notify.Sink] method, which runs on the session's own event loop.
func (l *Listener) Stop() {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Run starts a session and blocks until it ends. It returns nil when the
// session is stopped through [Listener.Stop] or ctx, and an *[Error] when it
// could not start or failed while running.
func (l *Listener) Run(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := l.claim(cancel)
	if err != nil {
		return err
	}
	defer l.release(s)

	rt, err := l.setup(cfg)
	if err != nil {
		slog.Error("listen: session setup failed", observe.KeySessionID, s.info.ID, "err", err)
		return err
	}

	l.mu.Lock()
	s.info.Device = rt.drv.Device().Name
	s.info.Stream = rt.drv.Config()
	s.info.StartedAt = time.Now()
	info := s.info
	l.mu.Unlock()

	ctx = observe.WithSession(ctx, info.ID)
	log := observe.Logger(ctx)
	log.Info("listen: session started",
		"device", info.Device,
		"pipeline", rt.proc.String(),
		"end_frames", rt.seg.EndFrames(),
		"linger_frames", rt.seg.LingerFrames(),
	)
	l.metrics.ActiveSessions.Add(ctx, 1)
	defer l.metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	result := l.serve(ctx, cancel, rt, log)

	log.Info("listen: session ended",
		"duration", time.Since(info.StartedAt).Round(time.Millisecond),
		"err", result,
	)
	return result
}

// claim registers a new session handle, or rejects the call if one exists.
func (l *Listener) claim(cancel context.CancelFunc) (*session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess != nil {
		return nil, newError(KindAlreadyRunning, "session %s is active", l.sess.info.ID)
	}
	l.sess = &session{
		info:   SessionInfo{ID: uuid.NewString()},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	return l.sess, nil
}

func (l *Listener) release(s *session) {
	l.mu.Lock()
	if l.sess == s {
		l.sess = nil
	}
	l.mu.Unlock()
	close(s.done)
}

// runtime is everything a started session owns.
type runtime struct {
	drv  *capture.Driver
	seg  *segment.Segmenter
	out  *ring.Buffer[int16]
	cls  vad.Classifier
	proc *pipeline
}

// setup negotiates the device and builds the pipeline. On success the
// stream is running.
func (l *Listener) setup(cfg Config) (*runtime, error) {
	maxSeg := cfg.MaxSegment
	switch {
	case maxSeg == 0:
		maxSeg = segment.DefaultMaxSegment
	case maxSeg < 0:
		maxSeg = 0
	}
	// Room for a full segment plus the next one arriving while the first
	// is transcribed.
	outCap := 2 * audio.SamplesFor(segment.DefaultMaxSegment, audio.TargetSampleRate)
	if maxSeg > segment.DefaultMaxSegment {
		outCap = 2 * audio.SamplesFor(maxSeg, audio.TargetSampleRate)
	}
	out, err := ring.New[int16](outCap)
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Err: err}
	}
	seg, err := segment.New(out, segment.Config{
		FrameSize:  audio.VADFrame,
		SampleRate: audio.TargetSampleRate,
		EndSilence: cfg.EndSilence,
		Linger:     cfg.Linger,
		MaxSegment: maxSeg,
	})
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Err: err}
	}

	devs, err := l.host.InputDevices()
	if err != nil {
		return nil, newError(KindAudioSetup, "list devices: %w", err)
	}
	dev, err := capture.FindDevice(devs, cfg.Device)
	if err != nil {
		return nil, &Error{Kind: KindAudioSetup, Err: err}
	}
	scfg, err := capture.SelectConfig(dev, audio.TargetSampleRate)
	if err != nil {
		return nil, &Error{Kind: KindAudioSetup, Err: err}
	}
	if cfg.MaxBuffer > 0 && scfg.QuantumDuration() > cfg.MaxBuffer {
		limit := max(audio.SamplesFor(cfg.MaxBuffer, scfg.SampleRate), 1)
		if dev.MaxBufferFrames == 0 || limit < dev.MaxBufferFrames {
			dev.MaxBufferFrames = max(limit, dev.MinBufferFrames)
		}
		if scfg, err = capture.SelectConfig(dev, audio.TargetSampleRate); err != nil {
			return nil, &Error{Kind: KindAudioSetup, Err: err}
		}
	}

	rs, err := resample.New(scfg.SampleRate, audio.TargetSampleRate, audio.VADFrame)
	if err != nil {
		return nil, &Error{Kind: KindResamplerSetup, Err: err}
	}

	cls, err := l.engine.NewClassifier(vad.Config{
		SampleRate: audio.TargetSampleRate,
		FrameSize:  audio.VADFrame,
		Mode:       cfg.VADMode,
		Threshold:  cfg.VADThreshold,
	})
	if err != nil {
		return nil, &Error{Kind: KindInvalidConfig, Err: err}
	}

	// At least two blocks of the largest input plus a device quantum of
	// headroom, and never under half a second.
	ch := scfg.Channels
	ringCap := max(2*(rs.MaxInputFrames()+scfg.FrameQuantum)*ch, scfg.SampleRate*ch/2)
	drv, err := capture.NewDriver(l.host, dev, scfg, ringCap)
	if err != nil {
		_ = cls.Close()
		return nil, &Error{Kind: KindAudioSetup, Err: err}
	}
	drv.SetRequired(rs.InputFramesRequired() * ch)
	if err := drv.Start(); err != nil {
		_ = cls.Close()
		return nil, &Error{Kind: KindAudioSetup, Err: err}
	}

	return &runtime{
		drv:  drv,
		seg:  seg,
		out:  out,
		cls:  cls,
		proc: newPipeline(drv, rs, cls, seg, l.metrics),
	}, nil
}

// serve runs the goroutines and the event loop, then shuts everything down.
func (l *Listener) serve(ctx context.Context, cancel context.CancelFunc, rt *runtime, log *slog.Logger) error {
	// Every pending segment holds at least one frame in the output ring and
	// accounts for two events, so the processing goroutine only blocks on
	// the queue once that ring has overflowed.
	events := make(chan segment.Event, 2*(rt.out.Cap()/audio.VADFrame)+2)
	fatal := make(chan error, 1)
	fail := func(err error) {
		select {
		case fatal <- err:
		default:
			log.Error("listen: additional fatal error", "err", err)
		}
	}
	emit := func(ev segment.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := rt.drv.Run(ctx); err != nil {
			log.Warn("listen: capture shutdown", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		rt.proc.run(ctx, emit, fail)
	}()

	result := l.loop(ctx, rt, events, fatal, log)

	cancel()
	wg.Wait()
	if err := rt.cls.Close(); err != nil {
		log.Warn("listen: close classifier", "err", err)
	}

	late := drainErr(fatal)
	if late == nil {
		select {
		case err := <-rt.drv.Errors():
			late = &Error{Kind: KindAudioStream, Err: err}
		default:
		}
	}
	if late != nil {
		if result == nil {
			return late
		}
		log.Error("listen: error during shutdown", "err", late)
	}
	return result
}

func drainErr(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}

// loop is the event loop. It returns nil on cancellation and the fatal
// error otherwise.
func (l *Listener) loop(ctx context.Context, rt *runtime, events <-chan segment.Event, fatal <-chan error, log *slog.Logger) error {
	pcm := make([]int16, 0, rt.out.Cap())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-fatal:
			return err
		case ev := <-events:
			switch ev.Kind {
			case segment.SpeechStart:
				log.Debug("listen: speech started")
				if err := l.sink.Speaking(ctx); err != nil {
					log.Warn("listen: speaking notification failed", "err", err)
					l.metrics.RecordNotifyError(ctx, notify.EventInterim)
				}
			case segment.SpeechEnd:
				pcm = pcm[:ev.Samples]
				if err := rt.out.PopExact(pcm); err != nil {
					return newError(KindContractViolation, "segment of %d samples: %w", ev.Samples, err)
				}
				l.metrics.RecordSegmentEnd(ctx, audio.DurationOf(ev.Samples, audio.TargetSampleRate))
				l.finish(ctx, pcm, log)
			}
		}
	}
}

// finish transcribes one segment and publishes its text. Failures are
// logged and do not end the session.
func (l *Listener) finish(ctx context.Context, pcm []int16, log *slog.Logger) {
	length := audio.DurationOf(len(pcm), audio.TargetSampleRate)
	ctx, span := observe.StartTranscribeSpan(ctx, l.provider, len(pcm))
	defer span.End()

	start := time.Now()
	text, err := l.transcriber.Transcribe(ctx, pcm)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		observe.FailSpan(span, ctx.Err())
		log.Debug("listen: transcription abandoned at shutdown", "length", length)
		return
	}
	l.metrics.RecordTranscription(ctx, l.provider, elapsed, err)
	if err != nil {
		observe.FailSpan(span, err)
		observe.Logger(ctx).Error("listen: transcription failed",
			"length", length,
			"latency", elapsed,
			"err", err,
		)
		return
	}

	if l.corrector != nil && text != "" {
		corrected, changes := l.corrector.Correct(text)
		if len(changes) > 0 {
			l.metrics.Corrections.Add(ctx, int64(len(changes)),
				metric.WithAttributes(observe.Attr("provider", l.provider)))
			for _, c := range changes {
				log.Debug("listen: corrected transcript",
					"original", c.Original,
					"corrected", c.Corrected,
					"confidence", c.Confidence,
				)
			}
			text = corrected
		}
	}

	log.Info("listen: segment transcribed",
		"length", length,
		"latency", elapsed.Round(time.Millisecond),
		"chars", len(text),
	)
	if text == "" {
		return
	}
	if err := l.sink.Final(ctx, text); err != nil {
		log.Warn("listen: final notification failed", "err", err)
		l.metrics.RecordNotifyError(ctx, notify.EventFinal)
	}
}
