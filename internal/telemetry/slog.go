package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type runIDKey struct{}

// WithRunID returns a copy of ctx carrying the bootstrap run id. Every record
// logged with that context through a TraceHandler gets a "run_id" attribute.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run id set by WithRunID, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// TraceHandler wraps a slog.Handler and correlates records with the bootstrap
// that produced them: "run_id" from WithRunID, plus "trace_id" and "span_id"
// of the active span. Repository, diagnostics and HTTP logs of one run can
// then be joined on either key. Use the *Context logging variants.
type TraceHandler struct {
	slog.Handler
}

// NewTraceHandler wraps h.
func NewTraceHandler(h slog.Handler) *TraceHandler {
	return &TraceHandler{Handler: h}
}

func (t *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := RunIDFromContext(ctx); ok {
		r.AddAttrs(slog.String("run_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return t.Handler.Handle(ctx, r)
}

func (t *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{Handler: t.Handler.WithAttrs(attrs)}
}

func (t *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{Handler: t.Handler.WithGroup(name)}
}
