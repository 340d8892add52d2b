// Package vad defines the Engine interface for frame-level voice activity
// classifiers.
//
// A classifier is an opaque oracle: given one fixed-size frame of 16-bit mono
// PCM it answers "speech" or "silence". Hysteresis, segment boundaries and
// buffering are the caller's concern (see internal/segment); a classifier
// only needs to be deterministic per frame.
//
// Predict is synchronous and must not block: it runs on the capture
// processing goroutine once per frame.
//
// Implementations of Engine must be safe for concurrent use. A Classifier is
// owned by a single goroutine unless the implementation documents otherwise.
package vad

import "errors"

// ErrFrameSize is returned by Predict when the frame length does not match
// the configured frame size.
var ErrFrameSize = errors.New("vad: frame size mismatch")

// Config holds the parameters for a classifier.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to Predict.
	SampleRate int

	// FrameSize is the number of samples per frame.
	FrameSize int

	// Mode is the aggressiveness of model-based classifiers, from 0 (least
	// aggressive about filtering out non-speech) to 3 (most aggressive).
	Mode int

	// Threshold is the RMS level, in 16-bit PCM units, above which the energy
	// classifier reports speech. Ignored by model-based classifiers.
	Threshold float64
}

// Classifier labels individual audio frames.
type Classifier interface {
	// Predict reports whether frame contains speech. The frame must hold
	// exactly Config.FrameSize samples at Config.SampleRate.
	Predict(frame []int16) (bool, error)

	// Close releases any resources held by the classifier. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Engine is the factory for classifiers, implemented by each VAD backend.
type Engine interface {
	// NewClassifier creates a classifier for the given configuration. It
	// returns an error if the configuration is not supported by the backend.
	NewClassifier(cfg Config) (Classifier, error)
}
