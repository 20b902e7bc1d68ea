package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
	"github.com/omeyang/xcoord/pkg/storage/xstore"
)

// unlockCleanupTimeout ctx 已结束时解锁使用的独立超时。
const unlockCleanupTimeout = 5 * time.Second

const componentName = "xdlock"

// =============================================================================
// 存储工厂实现
// =============================================================================

// storeFactory 基于 xstore.AtomicStore 的锁工厂。
type storeFactory struct {
	store  xstore.AtomicStore
	opts   *factoryOptions
	closed atomic.Bool
}

var _ Factory = (*storeFactory)(nil)

// New 创建基于存储的锁工厂。
//
// 加锁为 SET NX（附带可选 TTL），解锁为原子的比较并删除。
// store 可以是 xstore.RedisStore 或 xstore.EtcdStore。
func New(store xstore.AtomicStore, opts ...FactoryOption) (Factory, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	o := defaultFactoryOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &storeFactory{store: store, opts: o}, nil
}

// prepare 校验参数并生成本次加锁的 key 与 token。
func (f *storeFactory) prepare(ctx context.Context, key string, opts []MutexOption) (*mutexOptions, string, string, error) {
	if ctx == nil {
		return nil, "", "", ErrNilContext
	}
	if f.closed.Load() {
		return nil, "", "", ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, "", "", err
	}

	o := defaultMutexOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	fullKey := o.KeyPrefix + key
	if len(fullKey) > maxKeyLength {
		return nil, "", "", ErrKeyTooLong
	}

	token, err := o.TokenFunc()
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
	}
	return o, fullKey, token, nil
}

// TryLock 只尝试一次，锁被占用时返回 (nil, nil)。
func (f *storeFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	o, fullKey, token, err := f.prepare(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, f.opts.observer, f.spanOptions("try_lock", fullKey))

	ok, err := f.store.SetNX(ctx, fullKey, token, o.TTL)
	if err != nil {
		span.End(xmetrics.Result{Err: err})
		return nil, err
	}
	if !ok {
		span.End(xmetrics.Result{Status: xmetrics.StatusBusy})
		return nil, nil
	}

	span.End(xmetrics.Result{})
	return f.newHandle(fullKey, token), nil
}

// Lock 阻塞式获取锁。
func (f *storeFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	o, fullKey, token, err := f.prepare(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, f.opts.observer, f.spanOptions("lock", fullKey))
	start := time.Now()

	err = f.acquire(ctx, o, fullKey, token)
	waited := time.Since(start)

	switch {
	case err == nil:
		span.End(xmetrics.Result{Attrs: []xmetrics.Attr{xmetrics.Duration("wait", waited)}})
		f.opts.logger.Debug(ctx, "lock acquired",
			slog.String("key", fullKey), slog.Duration("wait", waited))
		return f.newHandle(fullKey, token), nil
	case IsTimeout(err):
		span.End(xmetrics.Result{Status: xmetrics.StatusBusy, Err: err})
		f.opts.logger.Debug(ctx, "lock acquisition timed out",
			slog.String("key", fullKey), slog.Duration("timeout", o.BlockingTimeout))
		return nil, err
	default:
		span.End(xmetrics.Result{Err: err})
		return nil, err
	}
}

// acquire 循环执行 SET NX，直到成功、阻塞超时或 ctx 结束。
// 存储错误不重试，立即返回。
func (f *storeFactory) acquire(ctx context.Context, o *mutexOptions, key, token string) error {
	waitCtx := ctx
	if o.BlockingTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.BlockingTimeout)
		defer cancel()
	}

	err := retry.New(
		retry.Context(waitCtx),
		retry.UntilSucceeded(),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrLockHeld)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return backoff(o.RetryDelay, o.MaxRetryDelay, n)
		}),
	).Do(func() error {
		ok, err := f.store.SetNX(waitCtx, key, token, o.TTL)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	})
	if err == nil {
		return nil
	}

	// 调用方 ctx 结束优先于阻塞超时
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if waitCtx.Err() != nil {
		// 最后一次 SET NX 可能已在服务端生效而客户端未收到应答，尽力清理
		f.discard(ctx, key, token)
		return fmt.Errorf("%w: key %q after %s", ErrLockTimeout, key, o.BlockingTimeout)
	}
	return err
}

// discard 使用独立上下文删除可能残留的本次 token。
func (f *storeFactory) discard(ctx context.Context, key, token string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockCleanupTimeout)
	defer cancel()
	_, _ = f.store.CompareAndDelete(cleanupCtx, key, token)
}

// backoff 计算第 n 次重试（从 1 开始）的延迟：initial*2^(n-1)，不超过 maxDelay，附加 ±10% 抖动。
func backoff(initial, maxDelay time.Duration, n uint) time.Duration {
	d := initial
	for i := uint(1); i < n && d < maxDelay; i++ {
		d *= 2
	}
	d = min(d, maxDelay)

	jitter := time.Duration(float64(d) * retryJitter * (2*rand.Float64() - 1))
	return max(d+jitter, 0)
}

func (f *storeFactory) newHandle(key, token string) *storeLockHandle {
	return &storeLockHandle{factory: f, key: key, token: token}
}

func (f *storeFactory) spanOptions(operation, key string) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Component: componentName,
		Operation: operation,
		Kind:      xmetrics.KindClient,
		Attrs:     []xmetrics.Attr{xmetrics.String("key", key)},
	}
}

// Health 检查存储连接。
func (f *storeFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	return f.store.Ping(ctx)
}

// Close 关闭工厂。不关闭底层存储。
func (f *storeFactory) Close(_ context.Context) error {
	f.closed.Store(true)
	return nil
}

// =============================================================================
// 存储 LockHandle 实现
// =============================================================================

type storeLockHandle struct {
	factory *storeFactory
	key     string
	token   string
}

// Unlock 通过比较并删除释放锁。
//
// 允许在 factory 关闭后解锁，避免锁悬挂到 TTL 过期。
func (h *storeLockHandle) Unlock(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), unlockCleanupTimeout)
		defer cancel()
	}

	f := h.factory
	ctx, span := xmetrics.Start(ctx, f.opts.observer, f.spanOptions("unlock", h.key))

	ok, err := f.store.CompareAndDelete(ctx, h.key, h.token)
	if err != nil {
		span.End(xmetrics.Result{Err: err})
		return err
	}
	if !ok {
		span.End(xmetrics.Result{Err: ErrNotLocked})
		f.opts.logger.Warn(ctx, "lock released after expiry",
			slog.String("key", h.key), slog.String("token", h.token))
		return ErrNotLocked
	}

	span.End(xmetrics.Result{})
	return nil
}

// Key 返回锁的完整 key。
func (h *storeLockHandle) Key() string {
	return h.key
}

// Token 返回本次获取的 token。
func (h *storeLockHandle) Token() string {
	return h.token
}
