package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
)

// Group 基于 errgroup 并发运行一组 worker，任一 worker 出错或 Cancel 时取消其余 worker。
//
//	g, ctx := xrun.NewGroup(ctx, xrun.WithLogger(logger))
//	for i := range n {
//	    g.GoWithName(fmt.Sprintf("worker-%d", i), work)
//	}
//	err := g.Wait()
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 返回 Group 与其 context。nil ctx 视为 context.Background()。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动 fn。
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		return fn(g.ctx)
	})
}

// GoWithName 与 Go 相同，额外记录启停日志。
func (g *Group) GoWithName(name string, fn func(ctx context.Context) error) {
	g.Go(func(ctx context.Context) error {
		if fn == nil {
			return ErrNilFunc
		}
		attrs := []slog.Attr{slog.String("group", g.opts.name), slog.String("worker", name)}
		g.opts.logger.Debug(ctx, "worker starting", attrs...)
		start := time.Now()
		err := fn(ctx)
		attrs = append(attrs, xlog.Duration(time.Since(start)))
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn(ctx, "worker exited with error", append(attrs, xlog.Err(err))...)
		} else {
			g.opts.logger.Debug(ctx, "worker stopped", attrs...)
		}
		return err
	})
}

// Wait 等待所有 worker 结束，返回第一个错误。
//
// Group 自身被取消时，context.Canceled 被过滤；若 Cancel 传入了原因
// （例如 *SignalError），返回该原因。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	if g.causeCtx.Err() == nil {
		return err
	}
	if err == nil || errors.Is(err, context.Canceled) {
		if cause := context.Cause(g.causeCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	}
	return err
}

// Cancel 以 cause 为原因取消所有 worker。
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Run 运行 workers 并监听退出信号，所有 worker 结束后返回。
// 收到信号时取消 workers 并返回 *SignalError。
func Run(ctx context.Context, opts []Option, workers ...func(ctx context.Context) error) error {
	g, _ := NewGroup(ctx, opts...)

	var running sync.WaitGroup
	for _, w := range workers {
		running.Add(1)
		g.Go(func(ctx context.Context) error {
			defer running.Done()
			if w == nil {
				return ErrNilFunc
			}
			return w(ctx)
		})
	}

	if len(g.opts.signals) > 0 {
		done := make(chan struct{})
		go func() {
			running.Wait()
			close(done)
		}()
		g.Go(func(ctx context.Context) error {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, g.opts.signals...)
			defer signal.Stop(sigCh)

			var sig os.Signal
			select {
			case sig = <-testSigChan(ctx):
			case sig = <-sigCh:
			case <-done:
				return nil
			case <-ctx.Done():
				return nil
			}
			g.opts.logger.Info(ctx, "received signal",
				slog.String("group", g.opts.name), slog.String("signal", sig.String()))
			g.Cancel(&SignalError{Signal: sig})
			return nil
		})
	}
	return g.Wait()
}
