package xlimit

import (
	"time"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
)

// DefaultLockTimeout 进入临界区的默认最长等待时间。
const DefaultLockTimeout = 5 * time.Second

type options struct {
	clock       func() time.Time
	lockTimeout time.Duration
	lockTTL     time.Duration
	lockPrefix  string
	logger      xlog.Logger
	observer    xmetrics.Observer
}

// Option 配置选项函数
type Option func(*options)

func defaultOptions() *options {
	return &options{
		clock:       time.Now,
		lockTimeout: DefaultLockTimeout,
		logger:      xlog.Discard(),
		observer:    xmetrics.NoopObserver{},
	}
}

// WithClock 替换时间源，主要用于测试。nil 被忽略。
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLockTimeout 设置进入临界区的最长等待时间，非正值被忽略。
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithLockTTL 为临界区的锁设置过期时间，默认不过期。
// 持锁进程崩溃时，锁在 TTL 后自动释放。
func WithLockTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.lockTTL = d
		}
	}
}

// WithLockPrefix 设置临界区锁名的前缀，默认为空，锁名即 Key+"_lock"。
// 与其他语言实现的进程共享同一请求日志时，锁名必须与对方一致。
func WithLockPrefix(prefix string) Option {
	return func(o *options) {
		o.lockPrefix = prefix
	}
}

// WithLogger 设置日志记录器。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器。
func WithObserver(observer xmetrics.Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}
