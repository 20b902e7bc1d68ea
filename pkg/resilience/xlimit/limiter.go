package xlimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/omeyang/xcoord/pkg/distributed/xdlock"
	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
	"github.com/omeyang/xcoord/pkg/storage/xstore"
)

const componentName = "xlimit"

// Limiter 滑动窗口日志限流器。
//
// 请求日志是存储中的一个列表，头部为最新的放行时间戳（浮点秒），
// 长度不超过 Limit。所有读写都在 Key+"_lock" 分布式锁内完成，
// 多个进程共享同一 Key 时共享同一份配额。
type Limiter struct {
	store  xstore.ListStore
	locker xdlock.Factory
	cfg    Config
	opts   *options
}

// New 创建限流器。store 与 locker 的生命周期由调用方管理。
func New(store xstore.ListStore, locker xdlock.Factory, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if locker == nil {
		return nil, ErrNilLocker
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Limiter{store: store, locker: locker, cfg: cfg, opts: o}, nil
}

// Config 返回限流规则。
func (l *Limiter) Config() Config {
	return l.cfg
}

// Test 判断当前请求是否放行，放行时记录本次时间戳。
//
// 窗口内已放行次数小于 Limit 时放行；否则只有最旧记录严格早于
// now-Period 时放行并淘汰最旧记录。恰好等于边界时拒绝。
// 拒绝不修改请求日志。Limit 为 0 时总是拒绝且不访问存储。
//
// 锁等待超时返回同时匹配 ErrBusy 与 xdlock.ErrLockTimeout 的错误。
func (l *Limiter) Test(ctx context.Context) (allowed bool, err error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	if l.cfg.Limit == 0 {
		return false, nil
	}

	ctx, span := xmetrics.Start(ctx, l.opts.observer, l.spanOptions("test"))
	defer func() {
		switch {
		case err != nil && IsBusy(err):
			span.End(xmetrics.Result{Status: xmetrics.StatusBusy, Err: err})
		case err != nil:
			span.End(xmetrics.Result{Err: err})
		case !allowed:
			span.End(xmetrics.Result{Status: xmetrics.StatusBusy})
		default:
			span.End(xmetrics.Result{})
		}
	}()

	err = l.withLock(ctx, func(ctx context.Context) error {
		allowed, err = l.test(ctx)
		return err
	})
	if err == nil && !allowed {
		l.opts.logger.Debug(ctx, "rate limit exceeded",
			slog.String("key", l.cfg.Key), slog.Int("limit", l.cfg.Limit))
	}
	return allowed, err
}

// Allow 与 Test 相同，拒绝时返回 ErrRateLimitExceeded。
func (l *Limiter) Allow(ctx context.Context) error {
	ok, err := l.Test(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrRateLimitExceeded, l.cfg.Key)
	}
	return nil
}

// Reset 清空请求日志。
func (l *Limiter) Reset(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return l.withLock(ctx, func(ctx context.Context) error {
		if _, err := l.store.Del(ctx, l.cfg.Key); err != nil {
			return fmt.Errorf("xlimit: reset: %w", err)
		}
		return nil
	})
}

// Len 返回请求日志当前长度，不加锁。
func (l *Limiter) Len(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, ErrNilContext
	}
	n, err := l.store.LLen(ctx, l.cfg.Key)
	if err != nil {
		return 0, fmt.Errorf("xlimit: llen: %w", err)
	}
	return n, nil
}

func (l *Limiter) test(ctx context.Context) (bool, error) {
	now := l.opts.clock()
	lowBound := seconds(now.Add(-l.cfg.Period))

	n, err := l.store.LLen(ctx, l.cfg.Key)
	if err != nil {
		return false, fmt.Errorf("xlimit: llen: %w", err)
	}
	if n < int64(l.cfg.Limit) {
		return true, l.push(ctx, now)
	}

	raw, ok, err := l.store.LIndex(ctx, l.cfg.Key, -1)
	if err != nil {
		return false, fmt.Errorf("xlimit: lindex: %w", err)
	}
	if ok {
		oldest, perr := strconv.ParseFloat(raw, 64)
		if perr != nil {
			return false, fmt.Errorf("%w %q: %w", ErrInvalidEntry, raw, perr)
		}
		if oldest >= lowBound {
			return false, nil
		}
	}

	if err := l.push(ctx, now); err != nil {
		return false, err
	}
	if err := l.store.LTrim(ctx, l.cfg.Key, 0, int64(l.cfg.Limit)-1); err != nil {
		return false, fmt.Errorf("xlimit: ltrim: %w", err)
	}
	return true, nil
}

func (l *Limiter) push(ctx context.Context, now time.Time) error {
	if _, err := l.store.LPush(ctx, l.cfg.Key, formatSeconds(now)); err != nil {
		return fmt.Errorf("xlimit: lpush: %w", err)
	}
	return nil
}

// withLock 在 Key+"_lock" 锁内执行 fn。释放失败只记录日志。
// 锁名默认不带 xdlock 的 "lock:" 前缀。
func (l *Limiter) withLock(ctx context.Context, fn func(context.Context) error) error {
	handle, err := l.locker.Lock(ctx, l.cfg.lockKey(),
		xdlock.WithKeyPrefix(l.opts.lockPrefix),
		xdlock.WithBlockingTimeout(l.opts.lockTimeout),
		xdlock.WithTTL(l.opts.lockTTL),
	)
	if err != nil {
		if xdlock.IsTimeout(err) {
			return errors.Join(ErrBusy, err)
		}
		return err
	}
	defer func() {
		if uerr := handle.Unlock(ctx); uerr != nil {
			l.opts.logger.Warn(ctx, "release limiter lock failed",
				slog.String("key", handle.Key()), xlog.Err(uerr))
		}
	}()
	return fn(ctx)
}

func (l *Limiter) spanOptions(operation string) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Component: componentName,
		Operation: operation,
		Kind:      xmetrics.KindClient,
		Attrs: []xmetrics.Attr{
			xmetrics.String("key", l.cfg.Key),
			xmetrics.Int("limit", l.cfg.Limit),
		},
	}
}

// seconds 返回 Unix 浮点秒。
func seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func formatSeconds(t time.Time) string {
	return strconv.FormatFloat(seconds(t), 'f', -1, 64)
}
