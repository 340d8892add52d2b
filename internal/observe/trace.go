package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/murmur"

// Attribute keys shared by session spans and log lines.
const (
	KeySessionID = "session_id"
	KeyProvider  = "stt.provider"
	KeySamples   = "audio.samples"
)

type sessionKey struct{}

// WithSession returns a copy of ctx tagged with a capture session ID. Spans
// started from it and loggers built by [Logger] carry the ID.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the session ID set by [WithSession], or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// StartSpan starts a span on the global tracer provider. A session ID in
// ctx is added as an attribute. The caller must end the span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := SessionID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(KeySessionID, id)))
	}
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartTranscribeSpan starts the span covering the transcription of one
// segment of the given length in samples.
func StartTranscribeSpan(ctx context.Context, provider string, samples int) (context.Context, trace.Span) {
	return StartSpan(ctx, "listen.transcribe",
		trace.WithAttributes(
			attribute.String(KeyProvider, provider),
			attribute.Int(KeySamples, samples),
		),
	)
}

// FailSpan marks span as failed with err.
func FailSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the trace ID of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the session ID and the current
// span's trace_id and span_id attached, as far as ctx carries them.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := SessionID(ctx); id != "" {
		l = l.With(slog.String(KeySessionID, id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
