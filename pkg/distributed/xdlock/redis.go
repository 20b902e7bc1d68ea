package xdlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
)

// defaultRedlockExpiry Redlock 必须设置过期时间，TTL 为 0 时使用此值。
const defaultRedlockExpiry = 8 * time.Second

// Redsync 是 redsync.Redsync 的类型别名。
type Redsync = *redsync.Redsync

// RedlockFactory 基于 Redlock 算法的锁工厂。
type RedlockFactory interface {
	Factory

	// Redsync 返回底层 redsync.Redsync 实例，用于需要直接访问 redsync 的高级场景。
	Redsync() Redsync
}

// =============================================================================
// Redlock 工厂实现
// =============================================================================

type redlockFactory struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	opts    *factoryOptions
	closed  atomic.Bool
}

var _ RedlockFactory = (*redlockFactory)(nil)

// NewRedlockFactory 创建基于多个独立 Redis 节点的锁工厂。
//
// 单节点时等价于标准 Redis 锁；多节点使用 Redlock 算法，需过半节点成功。
// 与 New 的区别：Redlock 要求锁必须有过期时间，TTL 为 0 时使用 8s。
func NewRedlockFactory(clients []redis.UniversalClient, opts ...FactoryOption) (RedlockFactory, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, client := range clients {
		if client == nil {
			return nil, errors.Join(ErrNilClient, errors.New("client at index "+strconv.Itoa(i)+" is nil"))
		}
		pools[i] = goredis.NewPool(client)
	}

	o := defaultFactoryOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return &redlockFactory{
		clients: clients,
		rs:      redsync.New(pools...),
		opts:    o,
	}, nil
}

func (f *redlockFactory) prepare(ctx context.Context, key string, opts []MutexOption) (*mutexOptions, string, error) {
	if ctx == nil {
		return nil, "", ErrNilContext
	}
	if f.closed.Load() {
		return nil, "", ErrFactoryClosed
	}
	if err := validateKey(key); err != nil {
		return nil, "", err
	}
	o := defaultMutexOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	fullKey := o.KeyPrefix + key
	if len(fullKey) > maxKeyLength {
		return nil, "", ErrKeyTooLong
	}
	return o, fullKey, nil
}

// createMutex 将 MutexOption 转换为 redsync 选项。
func (f *redlockFactory) createMutex(o *mutexOptions, fullKey string, tries int) *redsync.Mutex {
	expiry := o.TTL
	if expiry == 0 {
		expiry = defaultRedlockExpiry
	}
	return f.rs.NewMutex(fullKey,
		redsync.WithExpiry(expiry),
		redsync.WithTries(tries),
		redsync.WithRetryDelayFunc(func(n int) time.Duration {
			return backoff(o.RetryDelay, o.MaxRetryDelay, uint(max(n, 1)))
		}),
		redsync.WithGenValueFunc(func() (string, error) {
			token, err := o.TokenFunc()
			if err != nil {
				return "", fmt.Errorf("%w: %w", ErrTokenGeneration, err)
			}
			return token, nil
		}),
	)
}

// TryLock 非阻塞式获取锁，锁被占用时返回 (nil, nil)。
func (f *redlockFactory) TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	o, fullKey, err := f.prepare(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, f.opts.observer, f.spanOptions("try_lock", fullKey))
	mutex := f.createMutex(o, fullKey, 1)

	if err := mutex.TryLockContext(ctx); err != nil {
		err = wrapRedisError(err)
		if errors.Is(err, ErrLockHeld) {
			span.End(xmetrics.Result{Status: xmetrics.StatusBusy})
			return nil, nil
		}
		span.End(xmetrics.Result{Err: err})
		return nil, err
	}

	span.End(xmetrics.Result{})
	return &redlockHandle{factory: f, mutex: mutex}, nil
}

// Lock 阻塞式获取锁。
func (f *redlockFactory) Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error) {
	o, fullKey, err := f.prepare(ctx, key, opts)
	if err != nil {
		return nil, err
	}

	ctx, span := xmetrics.Start(ctx, f.opts.observer, f.spanOptions("lock", fullKey))

	waitCtx := ctx
	if o.BlockingTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.BlockingTimeout)
		defer cancel()
	}

	// 重试次数由 ctx 控制，tries 仅作为上限
	mutex := f.createMutex(o, fullKey, math.MaxInt32)
	if err := mutex.LockContext(waitCtx); err != nil {
		// redsync 不会传递 context 错误，需要单独检查
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case waitCtx.Err() != nil:
			err = fmt.Errorf("%w: key %q after %s: %w", ErrLockTimeout, fullKey, o.BlockingTimeout, err)
			span.End(xmetrics.Result{Status: xmetrics.StatusBusy, Err: err})
			f.opts.logger.Debug(ctx, "lock acquisition timed out", slog.String("key", fullKey))
			return nil, err
		default:
			err = wrapRedisError(err)
		}
		span.End(xmetrics.Result{Err: err})
		return nil, err
	}

	span.End(xmetrics.Result{})
	f.opts.logger.Debug(ctx, "lock acquired", slog.String("key", fullKey))
	return &redlockHandle{factory: f, mutex: mutex}, nil
}

func (f *redlockFactory) spanOptions(operation, key string) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Component: componentName,
		Operation: operation,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("key", key),
			xmetrics.Int("nodes", len(f.clients)),
		},
	}
}

// Health 对所有 Redis 节点执行 PING。
func (f *redlockFactory) Health(ctx context.Context) error {
	if f.closed.Load() {
		return ErrFactoryClosed
	}
	for _, client := range f.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭工厂。Redis 客户端由调用者管理，不会被关闭。
func (f *redlockFactory) Close(_ context.Context) error {
	f.closed.Store(true)
	return nil
}

// Redsync 返回底层 redsync.Redsync 实例。
func (f *redlockFactory) Redsync() Redsync {
	return f.rs
}

// =============================================================================
// Redlock LockHandle 实现
// =============================================================================

type redlockHandle struct {
	factory *redlockFactory
	mutex   *redsync.Mutex
}

// Unlock 释放锁。允许在 factory 关闭后解锁。
func (h *redlockHandle) Unlock(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), unlockCleanupTimeout)
		defer cancel()
	}

	ok, err := h.mutex.UnlockContext(ctx)
	if ok {
		return nil
	}
	if err = wrapRedisError(err); err != nil &&
		!errors.Is(err, ErrNotLocked) && !errors.Is(err, ErrLockHeld) {
		return err
	}
	h.factory.opts.logger.Warn(ctx, "lock released after expiry", slog.String("key", h.Key()))
	return ErrNotLocked
}

// Key 返回锁的完整 key。
func (h *redlockHandle) Key() string {
	return h.mutex.Name()
}

// Token 返回本次获取的 token。
func (h *redlockHandle) Token() string {
	return h.mutex.Value()
}

// =============================================================================
// 错误转换
// =============================================================================

// wrapRedisError 将 redsync 错误转换为 xdlock 错误，保留原始错误链。
//
// redsync 以 multierror 汇总各节点结果：节点通信失败为 RedisError，
// 其余（ErrTaken、ErrNodeTaken、ErrFailed）均表示锁被占用。
func wrapRedisError(err error) error {
	if err == nil {
		return nil
	}

	// context 错误与 token 生成错误保持原样
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrTokenGeneration) {
		return err
	}

	var redisErr *redsync.RedisError
	if errors.As(err, &redisErr) {
		return err
	}
	if errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("%w: %w", ErrNotLocked, err)
	}
	return fmt.Errorf("%w: %w", ErrLockHeld, err)
}
