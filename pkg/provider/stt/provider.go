// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber turns one complete speech segment into text. The capture
// pipeline only hands it finished segments (see internal/listen), so
// backends need no streaming session or silence detection of their own: they
// receive a buffer of 16-bit mono PCM at the pipeline's target rate and
// return the recognised text, or an empty string when nothing was
// recognised.
//
// Transcribe may block for as long as inference takes. Callers invoke it
// sequentially; implementations that are safe for concurrent use document
// so.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional operations a backend does not
// implement.
var ErrNotSupported = errors.New("stt: operation not supported")

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe recognises the speech in pcm, which holds 16-bit mono
	// samples at the pipeline's target rate (16 kHz). An empty string with a
	// nil error means no speech was recognised.
	Transcribe(ctx context.Context, pcm []int16) (string, error)
}

// KeywordSetter is implemented by transcribers that accept vocabulary hints.
// Hints apply to subsequent Transcribe calls.
type KeywordSetter interface {
	SetKeywords(keywords []KeywordBoost) error
}

// Options carries the recognition settings shared by all backends.
type Options struct {
	// Language is the ISO-639-1 code of the spoken language (e.g. "en").
	// Empty or "auto" lets the backend detect it, if supported.
	Language string

	// Translate asks the backend to translate the recognised speech into
	// English. Backends without translation support return ErrNotSupported
	// from their constructor when it is set.
	Translate bool
}
