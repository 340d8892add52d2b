package listen

import (
	"errors"
	"fmt"
)

// Kind classifies a session failure.
type Kind int

const (
	// KindAlreadyRunning: Run was called while a session was active.
	KindAlreadyRunning Kind = iota + 1

	// KindInvalidConfig: the segmenter or classifier rejected the session
	// configuration.
	KindInvalidConfig

	// KindAudioSetup: no device matched, no usable format, or the stream
	// could not be opened or started.
	KindAudioSetup

	// KindResamplerSetup: no converter exists for the negotiated rate.
	KindResamplerSetup

	// KindAudioStream: the platform reported a stream failure while running.
	KindAudioStream

	// KindContractViolation: an internal invariant broke (block size
	// mismatch, output ring underflow, classifier frame rejection).
	KindContractViolation
)

// Sentinels matched by [errors.Is] against an *[Error] of the same kind.
var (
	ErrAlreadyRunning    = errors.New("listen: session already running")
	ErrInvalidConfig     = errors.New("listen: invalid session config")
	ErrAudioSetup        = errors.New("listen: audio setup failed")
	ErrResamplerSetup    = errors.New("listen: resampler setup failed")
	ErrAudioStream       = errors.New("listen: audio stream failed")
	ErrContractViolation = errors.New("listen: contract violation")
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindAlreadyRunning:
		return "already running"
	case KindInvalidConfig:
		return "invalid config"
	case KindAudioSetup:
		return "audio setup"
	case KindResamplerSetup:
		return "resampler setup"
	case KindAudioStream:
		return "audio stream"
	case KindContractViolation:
		return "contract violation"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAlreadyRunning:
		return ErrAlreadyRunning
	case KindInvalidConfig:
		return ErrInvalidConfig
	case KindAudioSetup:
		return ErrAudioSetup
	case KindResamplerSetup:
		return ErrResamplerSetup
	case KindAudioStream:
		return ErrAudioStream
	case KindContractViolation:
		return ErrContractViolation
	}
	return nil
}

// Error is the error returned by [Listener.Run].
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "listen: " + e.Kind.String()
	}
	return fmt.Sprintf("listen: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return 0
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
