package xqueue

import (
	"time"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
)

type options struct {
	blockingTimeout time.Duration
	logger          xlog.Logger
	observer        xmetrics.Observer
}

// Option 配置 Queue。
type Option func(*options)

// WithBlockingTimeout 设置 Consume 的最长阻塞时间，0（默认）表示一直等待直到 ctx 结束。
func WithBlockingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.blockingTimeout = d
		}
	}
}

func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
