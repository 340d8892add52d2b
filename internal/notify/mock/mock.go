// Package mock provides a recording notify.Sink for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/murmur/internal/notify"
)

// Sink records every notification.
type Sink struct {
	mu sync.Mutex

	// SpeakingErr, if non-nil, is returned by Speaking.
	SpeakingErr error

	// FinalErr, if non-nil, is returned by Final.
	FinalErr error

	// Events records every notification in order.
	Events []notify.Event

	signal chan struct{}
}

// Speaking records an interim event.
func (s *Sink) Speaking(_ context.Context) error {
	s.record(notify.Event{Name: notify.EventInterim, Text: notify.SpeakingPayload})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SpeakingErr
}

// Final records a final event.
func (s *Sink) Final(_ context.Context, text string) error {
	s.record(notify.Event{Name: notify.EventFinal, Text: text})
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FinalErr
}

// Recorded returns a snapshot of the recorded events. Thread-safe.
func (s *Sink) Recorded() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.Events...)
}

// Finals returns the texts of all final events in order.
func (s *Sink) Finals() []string {
	var out []string
	for _, ev := range s.Recorded() {
		if ev.Name == notify.EventFinal {
			out = append(out, ev.Text)
		}
	}
	return out
}

// Notified returns a channel that receives a value after each recorded
// event. Only the most recent unobserved signal is kept.
func (s *Sink) Notified() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signal == nil {
		s.signal = make(chan struct{}, 1)
	}
	return s.signal
}

func (s *Sink) record(ev notify.Event) {
	s.mu.Lock()
	s.Events = append(s.Events, ev)
	ch := s.signal
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ notify.Sink = (*Sink)(nil)
