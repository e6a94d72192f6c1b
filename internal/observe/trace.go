package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/MrWong99/peridot-guide"

// Span attribute keys shared by live sessions and the assistant.
const (
	AttrSessionID  = attribute.Key("peridot.session.id")
	AttrInputRate  = attribute.Key("peridot.audio.input_rate")
	AttrOutputRate = attribute.Key("peridot.audio.output_rate")
	AttrModel      = attribute.Key("peridot.model")
)

// StartSpan starts a span from the globally registered tracer provider.
// The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(scopeName).Start(ctx, name, opts...)
}

// AnnotateSession tags span with the live session it belongs to and the
// sample rates of both audio directions.
func AnnotateSession(span trace.Span, sessionID string, inRate, outRate int) {
	span.SetAttributes(
		AttrSessionID.String(sessionID),
		AttrInputRate.Int(inRate),
		AttrOutputRate.Int(outRate),
	)
}

// SetSpanResult marks span failed with err, or ok when err is nil.
func SetSpanResult(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CorrelationID is the trace ID of the span in ctx, or "" without one.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns base, or [slog.Default] when base is nil, with the trace
// and span IDs of ctx attached.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

// SessionLogger is [Logger] plus the session_id every live session log line
// carries.
func SessionLogger(ctx context.Context, base *slog.Logger, sessionID string) *slog.Logger {
	return Logger(ctx, base).With(slog.String("session_id", sessionID))
}
