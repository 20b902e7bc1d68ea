package xdlock

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
)

// maxKeyLength 锁 key 最大长度（字节）。
const maxKeyLength = 512

// validateKey 验证锁 key 是否有效。
func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// =============================================================================
// 工厂选项
// =============================================================================

// FactoryOption 定义工厂的配置选项。
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger   xlog.Logger
	observer xmetrics.Observer
}

func defaultFactoryOptions() *factoryOptions {
	return &factoryOptions{
		logger:   xlog.Discard(),
		observer: xmetrics.NoopObserver{},
	}
}

// WithLogger 设置日志记录器。默认不输出。
func WithLogger(logger xlog.Logger) FactoryOption {
	return func(o *factoryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 设置观测器，记录加锁与解锁的 span 和指标。
func WithObserver(observer xmetrics.Observer) FactoryOption {
	return func(o *factoryOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// =============================================================================
// 锁实例选项
// =============================================================================

// MutexOption 定义单次加锁的配置选项。
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	KeyPrefix       string
	TTL             time.Duration
	BlockingTimeout time.Duration
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	TokenFunc       func() (string, error)
}

// 默认退避参数：首次 10ms，每次翻倍，上限 100ms。
const (
	defaultRetryDelay    = 10 * time.Millisecond
	defaultMaxRetryDelay = 100 * time.Millisecond
	retryJitter          = 0.1
)

func defaultMutexOptions() *mutexOptions {
	return &mutexOptions{
		KeyPrefix:     "lock:",
		RetryDelay:    defaultRetryDelay,
		MaxRetryDelay: defaultMaxRetryDelay,
		TokenFunc:     newToken,
	}
}

func newToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// WithKeyPrefix 设置锁 key 的前缀。
// 最终 key = prefix + key。
// 默认值："lock:"。
//
// 示例：
//
//	handle, _ := factory.TryLock(ctx, "my-resource", xdlock.WithKeyPrefix("myapp:"))
//	// 实际 key: "myapp:my-resource"
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) {
		o.KeyPrefix = prefix
	}
}

// WithTTL 设置锁的最长持有时间，到期后由存储自动删除。
// 默认 0，表示不过期。
//
// 锁不会续期：业务执行超过 TTL 时，其他进程可能同时进入临界区。
func WithTTL(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d >= 0 {
			o.TTL = d
		}
	}
}

// WithBlockingTimeout 设置 Lock 的最长等待时间。
// 默认 0，表示一直等待直到 ctx 结束。
func WithBlockingTimeout(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d >= 0 {
			o.BlockingTimeout = d
		}
	}
}

// WithRetryDelay 设置重试退避的初始延迟与上限。
// 每次重试延迟翻倍并附加 ±10% 抖动，不超过 maxDelay。
// 默认 10ms / 100ms。
func WithRetryDelay(initial, maxDelay time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if initial > 0 {
			o.RetryDelay = initial
		}
		if maxDelay > 0 {
			o.MaxRetryDelay = maxDelay
		}
		if o.MaxRetryDelay < o.RetryDelay {
			o.MaxRetryDelay = o.RetryDelay
		}
	}
}

// WithTokenFunc 设置 token 生成函数，默认生成 UUIDv4。
// 每次加锁调用一次，生成的值必须在所有进程间唯一。
func WithTokenFunc(fn func() (string, error)) MutexOption {
	return func(o *mutexOptions) {
		if fn != nil {
			o.TokenFunc = fn
		}
	}
}
