package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// AttrsFromCtx достаёт trace_id/span_id активного спана, если он есть.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}

	return []slog.Attr{
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	}
}

// Args: то же самое, но в виде ...any для slog.InfoContext.
func Args(ctx context.Context, extra ...any) []any {
	attrs := AttrsFromCtx(ctx)
	out := make([]any, 0, len(attrs)+len(extra))
	for _, a := range attrs {
		out = append(out, a)
	}
	return append(out, extra...)
}
