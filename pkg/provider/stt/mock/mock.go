// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to script the text returned for each segment and inspect
// the audio that was submitted.
//
// Example:
//
//	tr := &mock.Transcriber{Texts: []string{"hello", ""}}
//	text, _ := tr.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the samples passed to Transcribe.
	PCM []int16
}

// Transcriber is a mock implementation of stt.Transcriber and
// stt.KeywordSetter.
type Transcriber struct {
	mu sync.Mutex

	// Texts holds the results of successive Transcribe calls. Once it is
	// exhausted, Default is returned.
	Texts []string

	// Default is returned after Texts is exhausted.
	Default string

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Block, if non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// SetKeywordsErr, if non-nil, is returned by SetKeywords.
	SetKeywordsErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall

	// Keywords holds the most recent SetKeywords argument.
	Keywords []stt.KeywordBoost

	// called is signalled (non-blocking) after every Transcribe call.
	called chan struct{}
}

// Transcribe records the call and returns the next scripted text.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	t.mu.Lock()
	cp := make([]int16, len(pcm))
	copy(cp, pcm)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{PCM: cp})
	idx := len(t.TranscribeCalls) - 1
	block := t.Block
	t.mu.Unlock()

	defer t.notify()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.TranscribeErr != nil {
		return "", t.TranscribeErr
	}
	if idx < len(t.Texts) {
		return t.Texts[idx], nil
	}
	return t.Default, nil
}

// SetKeywords records the keywords and returns SetKeywordsErr.
func (t *Transcriber) SetKeywords(keywords []stt.KeywordBoost) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Keywords = keywords
	return t.SetKeywordsErr
}

// Calls returns a snapshot of the recorded Transcribe calls. Thread-safe.
func (t *Transcriber) Calls() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranscribeCall(nil), t.TranscribeCalls...)
}

// Called returns a channel that receives a value after each Transcribe call
// completes. Only the most recent unobserved signal is kept.
func (t *Transcriber) Called() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.called == nil {
		t.called = make(chan struct{}, 1)
	}
	return t.called
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
	t.Keywords = nil
}

func (t *Transcriber) notify() {
	t.mu.Lock()
	ch := t.called
	t.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Ensure Transcriber implements the stt interfaces at compile time.
var (
	_ stt.Transcriber   = (*Transcriber)(nil)
	_ stt.KeywordSetter = (*Transcriber)(nil)
)
