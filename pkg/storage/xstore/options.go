package xstore

import "time"

// Option 存储配置选项。
type Option func(*options)

type options struct {
	borrowed     bool
	pollInterval time.Duration
}

// defaultPollInterval 无限等待的 BLPop 按此间隔分段阻塞，以便响应 ctx 取消。
const defaultPollInterval = time.Second

func defaultOptions() *options {
	return &options{
		pollInterval: defaultPollInterval,
	}
}

// WithBorrowedClient 声明客户端由调用方管理，Close 时不关闭底层客户端。
func WithBorrowedClient() Option {
	return func(o *options) {
		o.borrowed = true
	}
}

// WithPollInterval 设置 BLPop 单次阻塞的最大时长。
// 默认 1s。值越小对 ctx 取消越敏感，Redis 往返次数也越多。
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}
