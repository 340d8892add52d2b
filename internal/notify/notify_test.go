package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/MrWong99/murmur/internal/notify"
	"github.com/MrWong99/murmur/internal/notify/mock"
)

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := notify.LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	if err := s.Speaking(context.Background()); err != nil {
		t.Fatalf("Speaking: %v", err)
	}
	if err := s.Final(context.Background(), "hello world"); err != nil {
		t.Fatalf("Final: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"event=stt_interim", "event=stt_final", `text="hello world"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()

	errA := errors.New("a failed")
	a := &mock.Sink{FinalErr: errA}
	b := &mock.Sink{}
	m := notify.Multi{a, b}

	if err := m.Speaking(context.Background()); err != nil {
		t.Fatalf("Speaking: %v", err)
	}
	if err := m.Final(context.Background(), "hi"); !errors.Is(err, errA) {
		t.Fatalf("Final = %v, want %v", err, errA)
	}

	for name, s := range map[string]*mock.Sink{"a": a, "b": b} {
		evs := s.Recorded()
		if len(evs) != 2 {
			t.Fatalf("sink %s recorded %d events, want 2", name, len(evs))
		}
		if evs[0].Name != notify.EventInterim || evs[0].Text != notify.SpeakingPayload {
			t.Errorf("sink %s first event = %+v", name, evs[0])
		}
		if got := s.Finals(); len(got) != 1 || got[0] != "hi" {
			t.Errorf("sink %s finals = %v", name, got)
		}
	}
}
