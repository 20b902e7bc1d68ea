package xlog

import (
	"context"
	"log/slog"
)

// Discard 返回丢弃所有日志的 Logger，作为各组件未注入 Logger 时的默认值。
func Discard() Logger {
	return discard{}
}

type discard struct{}

func (discard) Debug(context.Context, string, ...slog.Attr) {}
func (discard) Info(context.Context, string, ...slog.Attr)  {}
func (discard) Warn(context.Context, string, ...slog.Attr)  {}
func (discard) Error(context.Context, string, ...slog.Attr) {}
func (discard) Stack(context.Context, string, ...slog.Attr) {}
func (d discard) With(...slog.Attr) Logger                  { return d }
func (d discard) WithGroup(string) Logger                   { return d }
