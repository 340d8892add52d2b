package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/murmur/pkg/provider/stt"
)

// TranscriberFallback is an [stt.Transcriber] that fails over between
// backends. Each backend has its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

var (
	_ stt.Transcriber   = (*TranscriberFallback)(nil)
	_ stt.KeywordSetter = (*TranscriberFallback)(nil)
)

// NewTranscriberFallback creates a TranscriberFallback with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Available reports whether any backend is currently accepting calls.
func (f *TranscriberFallback) Available() bool { return f.group.Available() }

// Transcribe sends pcm to the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, pcm []int16) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, pcm)
	})
}

// SetKeywords forwards the keywords to every backend that accepts them.
// Backends without keyword support are skipped.
func (f *TranscriberFallback) SetKeywords(keywords []stt.KeywordBoost) error {
	var errs []error
	f.group.Each(func(name string, t stt.Transcriber) {
		ks, ok := t.(stt.KeywordSetter)
		if !ok {
			return
		}
		if err := ks.SetKeywords(keywords); err != nil && !errors.Is(err, stt.ErrNotSupported) {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
