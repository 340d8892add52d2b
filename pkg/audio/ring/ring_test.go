package ring_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/MrWong99/murmur/pkg/audio/ring"
)

func seq(from, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(from + i)
	}
	return out
}

func newBuffer(t *testing.T, capacity int) *ring.Buffer[int16] {
	t.Helper()
	b, err := ring.New[int16](capacity)
	if err != nil {
		t.Fatalf("New(%d): %v", capacity, err)
	}
	return b
}

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()
	for _, c := range []int{0, -1} {
		if _, err := ring.New[float32](c); err == nil {
			t.Errorf("New(%d): expected error", c)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	const capacity = 64
	for _, size := range []int{0, 1, 7, 63, 64} {
		b := newBuffer(t, capacity)
		// Advance the read/write positions so the copy wraps.
		if n := b.Push(seq(0, 40)); n != 40 {
			t.Fatalf("pre-push: wrote %d", n)
		}
		if err := b.PopExact(make([]int16, 40)); err != nil {
			t.Fatalf("pre-pop: %v", err)
		}

		in := seq(1000, size)
		if n := b.Push(in); n != size {
			t.Fatalf("size %d: Push wrote %d", size, n)
		}
		out := make([]int16, size)
		if err := b.PopExact(out); err != nil {
			t.Fatalf("size %d: PopExact: %v", size, err)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Fatalf("size %d: sample %d = %d, want %d", size, i, out[i], in[i])
			}
		}
		if b.Len() != 0 {
			t.Errorf("size %d: Len = %d after round trip, want 0", size, b.Len())
		}
	}
}

func TestPush_DropsOnlyOverflowTail(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, 10)
	if n := b.Push(seq(0, 6)); n != 6 {
		t.Fatalf("first Push wrote %d, want 6", n)
	}
	if n := b.Push(seq(6, 8)); n != 4 {
		t.Fatalf("second Push wrote %d, want 4", n)
	}
	if got := b.Dropped(); got != 4 {
		t.Errorf("Dropped = %d, want 4", got)
	}
	if b.Free() != 0 {
		t.Errorf("Free = %d, want 0", b.Free())
	}

	out := make([]int16, 10)
	if err := b.PopExact(out); err != nil {
		t.Fatalf("PopExact: %v", err)
	}
	want := seq(0, 10)
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestPopExact_Underflow(t *testing.T) {
	t.Parallel()

	b := newBuffer(t, 8)
	b.Push(seq(0, 3))

	err := b.PopExact(make([]int16, 4))
	if !errors.Is(err, ring.ErrUnderflow) {
		t.Fatalf("PopExact error = %v, want ErrUnderflow", err)
	}
	if b.Len() != 3 {
		t.Errorf("Len after failed pop = %d, want 3 (nothing consumed)", b.Len())
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const total = 100_000
	const chunk = 37
	b := newBuffer(t, 256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := 0
		for next < total {
			n := min(chunk, total-next)
			if b.Free() < n {
				continue
			}
			b.Push(seq(next, n))
			next += n
		}
	}()

	out := make([]int16, chunk)
	expect := 0
	for expect < total {
		n := min(chunk, total-expect)
		if err := b.PopExact(out[:n]); err != nil {
			continue
		}
		for i := range n {
			if out[i] != int16(expect+i) {
				t.Fatalf("sample %d = %d, want %d", expect+i, out[i], int16(expect+i))
			}
		}
		expect += n
	}
	wg.Wait()

	if b.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", b.Dropped())
	}
}
