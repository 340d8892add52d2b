// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that classifiers are created with the expected Config.
// Use Classifier to script speech/silence verdicts and inspect the frames that
// were submitted.
//
// Example:
//
//	cls := &mock.Classifier{Script: []bool{false, true, true}}
//	eng := &mock.Engine{Classifier: cls}
//	c, _ := eng.NewClassifier(cfg)
package mock

import (
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/vad"
)

// NewClassifierCall records a single invocation of Engine.NewClassifier.
type NewClassifierCall struct {
	// Cfg is the Config passed to NewClassifier.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Classifier is returned by NewClassifier. If nil, NewClassifier returns
	// a new Classifier that always reports silence.
	Classifier vad.Classifier

	// NewClassifierErr, if non-nil, is returned as the error from NewClassifier.
	NewClassifierErr error

	// NewClassifierCalls records every call to NewClassifier in order.
	NewClassifierCalls []NewClassifierCall
}

// NewClassifier records the call and returns Classifier, NewClassifierErr.
func (e *Engine) NewClassifier(cfg vad.Config) (vad.Classifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewClassifierCalls = append(e.NewClassifierCalls, NewClassifierCall{Cfg: cfg})
	if e.NewClassifierErr != nil {
		return nil, e.NewClassifierErr
	}
	if e.Classifier != nil {
		return e.Classifier, nil
	}
	return &Classifier{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Script holds the verdicts returned by successive Predict calls. Once it
	// is exhausted, Default is returned.
	Script []bool

	// Default is returned after Script is exhausted.
	Default bool

	// PredictErr, if non-nil, is returned by every Predict call.
	PredictErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// PredictCalls is the number of times Predict was called.
	PredictCalls int

	// FrameSizes records the length of every frame passed to Predict.
	FrameSizes []int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// Predict records the call and returns the next scripted verdict.
func (c *Classifier) Predict(frame []int16) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.PredictCalls
	c.PredictCalls++
	c.FrameSizes = append(c.FrameSizes, len(frame))
	if c.PredictErr != nil {
		return false, c.PredictErr
	}
	if idx < len(c.Script) {
		return c.Script[idx], nil
	}
	return c.Default, nil
}

// Close records the call and returns CloseErr.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// Calls returns the number of Predict calls. Thread-safe.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PredictCalls
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
