// Package malgo implements capture.Host on top of miniaudio through the
// github.com/gen2brain/malgo bindings (cgo). Streams capture interleaved
// float32 samples.
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/audio/capture"
)

// miniaudio accepts any period size; these bounds keep the negotiated
// buffer within a sensible latency range.
const (
	minBufferFrames = 64
	maxBufferFrames = 16384
)

// commonRates is assumed for devices that report a native format with an
// unspecified sample rate.
var commonRates = []int{8000, 16000, 22050, 32000, 44100, 48000, 96000}

// Host is a miniaudio context.
type Host struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[string]malgo.DeviceID
}

// Option configures a Host.
type Option func(*malgo.ContextConfig)

// WithRealtimePriority asks miniaudio to run its audio thread at realtime
// priority.
func WithRealtimePriority() Option {
	return func(c *malgo.ContextConfig) { c.ThreadPriority = malgo.ThreadPriorityRealtime }
}

// New initialises a miniaudio context on the platform's default backend.
func New(opts ...Option) (*Host, error) {
	cfg := malgo.ContextConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	ctx, err := malgo.InitContext(nil, cfg, func(msg string) {
		slog.Debug("miniaudio", "msg", msg)
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Host{ctx: ctx, ids: make(map[string]malgo.DeviceID)}, nil
}

// Close releases the miniaudio context.
func (h *Host) Close() error {
	if h.ctx == nil {
		return nil
	}
	err := h.ctx.Uninit()
	h.ctx.Free()
	h.ctx = nil
	if err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	return nil
}

// InputDevices lists capture devices with their native formats.
func (h *Host) InputDevices() ([]capture.DeviceInfo, error) {
	infos, err := h.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo: enumerate capture devices: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	devs := make([]capture.DeviceInfo, 0, len(infos))
	for _, info := range infos {
		full, err := h.ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		if err != nil {
			slog.Warn("malgo: query device info failed", "device", info.Name(), "err", err)
			full = info
		}
		id := info.ID.String()
		h.ids[id] = info.ID

		var native []malgo.DataFormat
		if n := int(full.FormatCount); n > 0 {
			native = full.Formats[:min(n, len(full.Formats))]
		}
		devs = append(devs, capture.DeviceInfo{
			ID:                id,
			Name:              info.Name(),
			Default:           info.IsDefault != 0,
			Formats:           formats(native),
			MinBufferFrames:   minBufferFrames,
			MaxBufferFrames:   maxBufferFrames,
			BufferGranularity: 1,
		})
	}
	return devs, nil
}

// formats converts miniaudio's native formats. A zero rate or channel count
// means the device converts internally, so every common value is offered.
// miniaudio converts any sample format to float32, so it is ignored.
func formats(native []malgo.DataFormat) []capture.Format {
	if len(native) == 0 {
		native = []malgo.DataFormat{{}}
	}
	var out []capture.Format
	for _, f := range native {
		rates := []int{int(f.SampleRate)}
		if f.SampleRate == 0 {
			rates = commonRates
		}
		chans := []int{int(f.Channels)}
		if f.Channels == 0 {
			chans = []int{1, 2}
		}
		for _, r := range rates {
			for _, c := range chans {
				cf := capture.Format{SampleRate: r, Channels: c}
				if !slices.Contains(out, cf) {
					out = append(out, cf)
				}
			}
		}
	}
	return out
}

// OpenInput initialises a capture device. The stream is created stopped.
func (h *Host) OpenInput(dev capture.DeviceInfo, cfg audio.StreamConfig, cb capture.Callbacks) (capture.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}

	s := &stream{
		cb:       cb,
		channels: cfg.Channels,
		// Headroom for hosts that deliver more than one period per callback.
		scratch: make([]float32, 4*cfg.FrameQuantum*cfg.Channels),
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatF32
	dc.Capture.Channels = uint32(cfg.Channels)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.FrameQuantum)
	dc.Alsa.NoMMap = 1

	h.mu.Lock()
	id, ok := h.ids[dev.ID]
	h.mu.Unlock()
	if ok {
		s.id = id
		dc.Capture.DeviceID = s.id.Pointer()
	} else if dev.ID != "" {
		return nil, fmt.Errorf("malgo: %w: unknown id for %q", capture.ErrDeviceNotFound, dev.Name)
	}

	d, err := malgo.InitDevice(h.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init device %q: %w", dev.Name, err)
	}
	s.dev = d
	return s, nil
}

// Ensure Host implements capture.Host at compile time.
var _ capture.Host = (*Host)(nil)

type stream struct {
	dev      *malgo.Device
	id       malgo.DeviceID
	cb       capture.Callbacks
	channels int
	scratch  []float32

	stopping atomic.Bool
	failed   atomic.Bool
	closed   bool
}

func (s *stream) Start() error {
	s.stopping.Store(false)
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("malgo: start device: %w", err)
	}
	return nil
}

func (s *stream) Stop() error {
	s.stopping.Store(true)
	if !s.dev.IsStarted() {
		return nil
	}
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("malgo: stop device: %w", err)
	}
	return nil
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	err := s.Stop()
	s.dev.Uninit()
	s.closed = true
	return err
}

// onData runs on the miniaudio thread.
func (s *stream) onData(_, input []byte, frames uint32) {
	if s.cb.Data == nil || len(input) == 0 {
		return
	}
	total := min(int(frames)*s.channels, len(input)/4)
	step := len(s.scratch) - len(s.scratch)%s.channels
	for off := 0; off < total; off += step {
		n := min(step, total-off)
		n = audio.DecodeFloat32LE(s.scratch[:n], input[off*4:])
		s.cb.Data(s.scratch[:n])
	}
}

// onStop runs when miniaudio stops the device, including on device loss.
func (s *stream) onStop() {
	if s.stopping.Load() || s.cb.Error == nil {
		return
	}
	if s.failed.CompareAndSwap(false, true) {
		s.cb.Error(errors.Join(capture.ErrStreamStopped, errors.New("malgo: device stopped by host")))
	}
}
