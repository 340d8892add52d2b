// Package notify delivers transcription events to interested parties.
//
// The session emits two kinds of events: [EventInterim] when speech starts
// (payload [SpeakingPayload]) and [EventFinal] with the recognised text of a
// finished segment. A [Sink] receives them; [LogSink] writes them to the
// structured log, [Hub] pushes them to websocket clients and [Multi] fans
// out to several sinks.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event names as seen by clients.
const (
	EventInterim = "stt_interim"
	EventFinal   = "stt_final"
)

// SpeakingPayload is the text of every interim event.
const SpeakingPayload = "[speaking]"

// Event is the wire form of a notification.
type Event struct {
	Name string    `json:"event"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Sink receives session notifications. Calls are made sequentially from the
// session's event loop and should return promptly.
type Sink interface {
	// Speaking reports that a speech segment has started.
	Speaking(ctx context.Context) error

	// Final reports the text of a finished segment. It is never called with
	// an empty string.
	Final(ctx context.Context, text string) error
}

// LogSink logs every notification at info level.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = LogSink{}

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Speaking implements Sink.
func (s LogSink) Speaking(ctx context.Context) error {
	s.logger().InfoContext(ctx, "speech started", "event", EventInterim)
	return nil
}

// Final implements Sink.
func (s LogSink) Final(ctx context.Context, text string) error {
	s.logger().InfoContext(ctx, "transcription", "event", EventFinal, "text", text)
	return nil
}

// Multi forwards every notification to all of its sinks, in order, and joins
// their errors.
type Multi []Sink

var _ Sink = Multi(nil)

// Speaking implements Sink.
func (m Multi) Speaking(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Speaking(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Final implements Sink.
func (m Multi) Final(ctx context.Context, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Final(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
