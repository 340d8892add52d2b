// Package webrtc provides a vad.Engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad, cgo).
//
// WebRTC VAD accepts 8, 16, 32 and 48 kHz audio in 10, 20 or 30 ms frames.
// Config.Mode selects its aggressiveness (0–3); Config.Threshold is ignored.
package webrtc

import (
	"encoding/binary"
	"fmt"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// Engine creates WebRTC classifiers.
type Engine struct {
	defaultMode int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultMode sets the aggressiveness used when Config.Mode is zero.
func WithDefaultMode(mode int) Option {
	return func(e *Engine) { e.defaultMode = mode }
}

// New returns a WebRTC Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{}
	for _, o := range opts {
		o(e)
	}
	if e.defaultMode < 0 || e.defaultMode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode must be in [0, 3], got %d", e.defaultMode)
	}
	return e, nil
}

// NewClassifier returns a classifier for cfg.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	mode := cfg.Mode
	if mode == 0 {
		mode = e.defaultMode
	}
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("webrtc vad: mode must be in [0, 3], got %d", mode)
	}
	// ValidRateAndFrameLength is a method that does not use its receiver.
	if !(*webrtcvad.VAD)(nil).ValidRateAndFrameLength(cfg.SampleRate, cfg.FrameSize) {
		return nil, fmt.Errorf("webrtc vad: unsupported rate/frame %d Hz / %d samples", cfg.SampleRate, cfg.FrameSize)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", mode, err)
	}
	return &Classifier{
		v:         v,
		rate:      cfg.SampleRate,
		frameSize: cfg.FrameSize,
		buf:       make([]byte, cfg.FrameSize*2),
	}, nil
}

// Classifier wraps one WebRTC VAD instance.
type Classifier struct {
	mu        sync.Mutex
	v         *webrtcvad.VAD
	rate      int
	frameSize int
	buf       []byte
	closed    bool
}

// Predict implements vad.Classifier.
func (c *Classifier) Predict(frame []int16) (bool, error) {
	if len(frame) != c.frameSize {
		return false, fmt.Errorf("webrtc vad: %w: got %d samples, want %d", vad.ErrFrameSize, len(frame), c.frameSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, fmt.Errorf("webrtc vad: classifier closed")
	}
	for i, s := range frame {
		binary.LittleEndian.PutUint16(c.buf[i*2:], uint16(s))
	}
	active, err := c.v.Process(c.rate, c.buf)
	if err != nil {
		return false, fmt.Errorf("webrtc vad: process: %w", err)
	}
	return active, nil
}

// Close implements vad.Classifier. The underlying detector is released by
// the binding's finalizer.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.v = nil
	return nil
}

var (
	_ vad.Engine     = (*Engine)(nil)
	_ vad.Classifier = (*Classifier)(nil)
)
