// Package ring provides a fixed-capacity single-producer/single-consumer
// circular buffer for audio samples.
//
// The buffer is the hand-off point between a real-time audio callback and the
// goroutine that processes its output. Push and PopExact never allocate,
// never block and never grow the buffer: a push that does not fit copies the
// leading samples that do and counts the rest as dropped.
//
// Exactly one goroutine may call the producer methods ([Buffer.Push]) and
// exactly one goroutine may call the consumer methods ([Buffer.PopExact]).
// [Buffer.Len], [Buffer.Free] and [Buffer.Dropped] are safe from either side.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrUnderflow is returned by [Buffer.PopExact] when fewer samples are
// buffered than requested. Nothing is consumed in that case.
var ErrUnderflow = errors.New("ring: not enough samples buffered")

// Sample is the set of element types the buffer may carry.
type Sample interface {
	~int16 | ~float32
}

// Buffer is a bounded SPSC ring of samples.
type Buffer[T Sample] struct {
	data []T

	// write and read are monotonically increasing positions; the occupied
	// length is write-read. Each is stored by exactly one side.
	write atomic.Uint64
	read  atomic.Uint64

	dropped atomic.Uint64
}

// New allocates a buffer that holds up to capacity samples.
func New[T Sample](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity must be positive, got %d", capacity)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// Cap returns the fixed capacity in samples.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Len returns the number of samples currently buffered.
func (b *Buffer[T]) Len() int {
	return int(b.write.Load() - b.read.Load())
}

// Free returns the number of samples that can be pushed without dropping.
func (b *Buffer[T]) Free() int { return len(b.data) - b.Len() }

// Dropped returns the total number of samples discarded by Push because the
// buffer was full.
func (b *Buffer[T]) Dropped() uint64 { return b.dropped.Load() }

// Push copies as many leading samples as fit and returns that count. The
// overflow tail is dropped; retained samples keep their order.
func (b *Buffer[T]) Push(samples []T) int {
	w := b.write.Load()
	r := b.read.Load()
	free := len(b.data) - int(w-r)

	n := min(len(samples), free)
	if n < len(samples) {
		b.dropped.Add(uint64(len(samples) - n))
	}
	if n == 0 {
		return 0
	}

	start := int(w % uint64(len(b.data)))
	first := copy(b.data[start:], samples[:n])
	copy(b.data, samples[first:n])

	b.write.Store(w + uint64(n))
	return n
}

// PopExact fills dst completely from the front of the buffer. If fewer than
// len(dst) samples are available it returns [ErrUnderflow] and leaves the
// buffer untouched.
func (b *Buffer[T]) PopExact(dst []T) error {
	r := b.read.Load()
	w := b.write.Load()
	if avail := int(w - r); avail < len(dst) {
		return fmt.Errorf("%w: want %d, have %d", ErrUnderflow, len(dst), avail)
	}
	if len(dst) == 0 {
		return nil
	}

	start := int(r % uint64(len(b.data)))
	first := copy(dst, b.data[start:])
	copy(dst[first:], b.data[:len(dst)-first])

	b.read.Store(r + uint64(len(dst)))
	return nil
}
