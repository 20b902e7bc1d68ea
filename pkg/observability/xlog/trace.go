package xlog

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ErrNilHandler 包装的 handler 为 nil
var ErrNilHandler = errors.New("xlog: nil handler")

// TraceHandler 从 context 中的 OpenTelemetry SpanContext 注入 trace_id 和 span_id。
//
// 与 xmetrics 开启的 span 配合，日志可以直接关联到链路。
type TraceHandler struct {
	base slog.Handler
}

// NewTraceHandler 包装 base。
func NewTraceHandler(base slog.Handler) (*TraceHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &TraceHandler{base: base}, nil
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			r = r.Clone()
			r.AddAttrs(
				slog.String(KeyTraceID, sc.TraceID().String()),
				slog.String(KeySpanID, sc.SpanID().String()),
			)
		}
	}
	return h.base.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{base: h.base.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{base: h.base.WithGroup(name)}
}
