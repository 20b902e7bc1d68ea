package xrun

import (
	"os"
	"syscall"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
)

// Option 配置 Group。
type Option func(*groupOptions)

type groupOptions struct {
	logger  xlog.Logger
	name    string
	signals []os.Signal
}

func defaultOptions() *groupOptions {
	return &groupOptions{
		logger:  xlog.Discard(),
		name:    "xrun",
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// WithLogger 记录 worker 启停。
func WithLogger(logger xlog.Logger) Option {
	return func(o *groupOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 日志中的 group 名称。
func WithName(name string) Option {
	return func(o *groupOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 替换 Run 监听的信号，传入空列表关闭信号处理。
func WithSignals(signals ...os.Signal) Option {
	copied := append([]os.Signal{}, signals...)
	return func(o *groupOptions) {
		o.signals = copied
	}
}
