// Package energy provides a vad.Engine that classifies frames by their RMS
// level. It needs no model files and is fully deterministic, which makes it
// the reference classifier for tests and a fallback when no model-based
// backend is available.
package energy

import (
	"fmt"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// DefaultThreshold is the RMS level used when Config.Threshold is zero. It
// sits well above typical microphone noise floors (≈100–300) and below
// normal speech (≈1000+).
const DefaultThreshold = 500

// Engine creates energy classifiers.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// NewClassifier returns a classifier for cfg.
func (*Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	if cfg.FrameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %d", cfg.FrameSize)
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("energy: threshold must not be negative, got %v", cfg.Threshold)
	}
	th := cfg.Threshold
	if th == 0 {
		th = DefaultThreshold
	}
	return &Classifier{frameSize: cfg.FrameSize, threshold: th}, nil
}

// Classifier reports speech when a frame's RMS exceeds the threshold.
type Classifier struct {
	frameSize int
	threshold float64
}

// Predict implements vad.Classifier.
func (c *Classifier) Predict(frame []int16) (bool, error) {
	if len(frame) != c.frameSize {
		return false, fmt.Errorf("energy: %w: got %d samples, want %d", vad.ErrFrameSize, len(frame), c.frameSize)
	}
	return audio.RMS(frame) > c.threshold, nil
}

// Close implements vad.Classifier. It is a no-op.
func (*Classifier) Close() error { return nil }

var (
	_ vad.Engine     = (*Engine)(nil)
	_ vad.Classifier = (*Classifier)(nil)
)
