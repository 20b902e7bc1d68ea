package xsingle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"time"

	"github.com/omeyang/xcoord/pkg/distributed/xdlock"
	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
)

// releaseTimeout 释放锁使用的独立超时，不受调用方 ctx 取消影响。
const releaseTimeout = 5 * time.Second

// NoWait 作为 MaxProcessingTime 时只尝试获取一次锁，被占用立即返回 ErrBusy。
const NoWait time.Duration = -1

// Func 是可被保护的函数。
type Func[T any] func(ctx context.Context) (T, error)

// Config 单飞保护配置。
type Config struct {
	// Factory 锁工厂，必填。多个被保护函数可以共享同一个工厂。
	Factory xdlock.Factory

	// Key 锁标识，为空时使用被包装函数的完整限定名。
	Key string

	// MaxProcessingTime 获取锁的最长等待时间，0 表示一直等待直到 ctx 结束，
	// NoWait 表示不等待。
	MaxProcessingTime time.Duration

	// TTL 锁的最长持有时间，0 表示不过期。
	// 锁不会续期，函数执行超过 TTL 后其他调用可能同时进入。
	TTL time.Duration

	// Logger 日志记录器，默认不输出。
	Logger xlog.Logger

	// Observer 观测器，默认不记录。
	Observer xmetrics.Observer
}

func (c *Config) validate() error {
	if c.Factory == nil {
		return ErrNilFactory
	}
	if (c.MaxProcessingTime < 0 && c.MaxProcessingTime != NoWait) || c.TTL < 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Decorator 校验配置并返回包装函数。
// 每次调用包装函数时解析一次 key，之后的执行共享该 key 与工厂。
func Decorator[T any](cfg Config) (func(Func[T]) Func[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return func(fn Func[T]) Func[T] {
		if fn == nil {
			return func(context.Context) (T, error) {
				var zero T
				return zero, ErrNilFunc
			}
		}
		return newGuard(cfg, fn).run
	}, nil
}

// Wrap 立即包装 fn。
func Wrap[T any](cfg Config, fn Func[T]) (Func[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, ErrNilFunc
	}
	return newGuard(cfg, fn).run, nil
}

type guard[T any] struct {
	fn       Func[T]
	factory  xdlock.Factory
	key      string
	noWait   bool
	lockOpts []xdlock.MutexOption
	logger   xlog.Logger
	observer xmetrics.Observer
}

func newGuard[T any](cfg Config, fn Func[T]) *guard[T] {
	key := cfg.Key
	if key == "" {
		key = FuncName(fn)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = xlog.Discard()
	}
	noWait := cfg.MaxProcessingTime == NoWait
	lockOpts := []xdlock.MutexOption{xdlock.WithTTL(cfg.TTL)}
	if !noWait {
		lockOpts = append(lockOpts, xdlock.WithBlockingTimeout(cfg.MaxProcessingTime))
	}
	return &guard[T]{
		fn:       fn,
		factory:  cfg.Factory,
		key:      key,
		noWait:   noWait,
		lockOpts: lockOpts,
		logger:   logger,
		observer: cfg.Observer,
	}
}

// acquire 获取锁。busy 为 true 表示锁被占用且不再等待。
func (g *guard[T]) acquire(ctx context.Context) (handle xdlock.LockHandle, busy bool, err error) {
	if g.noWait {
		handle, err = g.factory.TryLock(ctx, g.key, g.lockOpts...)
		return handle, err == nil && handle == nil, err
	}
	handle, err = g.factory.Lock(ctx, g.key, g.lockOpts...)
	if xdlock.IsTimeout(err) {
		return nil, true, nil
	}
	return handle, false, err
}

func (g *guard[T]) run(ctx context.Context) (result T, err error) {
	ctx, span := xmetrics.Start(ctx, g.observer, xmetrics.SpanOptions{
		Component: "xsingle",
		Operation: "run",
		Attrs:     []xmetrics.Attr{xmetrics.String("key", g.key)},
	})

	handle, busy, err := g.acquire(ctx)
	if busy {
		g.logger.Info(ctx, "single-flight busy", slog.String("key", g.key))
		span.End(xmetrics.Result{Status: xmetrics.StatusBusy})
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrBusy, g.key)
	}
	if err != nil {
		span.End(xmetrics.Result{Err: err})
		var zero T
		return zero, err
	}

	defer func() {
		// panic 照常向上传播，锁在传播前释放
		if r := recover(); r != nil {
			g.logger.Stack(ctx, "guarded function panicked", slog.String("key", g.key), slog.Any("panic", r))
			g.release(ctx, handle)
			span.End(xmetrics.Result{Err: fmt.Errorf("xsingle: panic: %v", r)})
			panic(r)
		}
		g.release(ctx, handle)
		span.End(xmetrics.Result{Err: err})
	}()

	return g.fn(ctx)
}

// release 释放锁，失败只记录日志，不覆盖函数的返回值。
func (g *guard[T]) release(ctx context.Context, handle xdlock.LockHandle) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	err := handle.Unlock(releaseCtx)
	switch {
	case err == nil:
	case errors.Is(err, xdlock.ErrNotLocked):
		g.logger.Warn(ctx, "lock expired before release, consider increasing TTL",
			slog.String("key", handle.Key()))
	default:
		g.logger.Warn(ctx, "release lock failed",
			slog.String("key", handle.Key()), xlog.Err(err))
	}
}

// FuncName 返回函数的完整限定名，例如 "github.com/org/pkg.(*T).Method"。
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}
