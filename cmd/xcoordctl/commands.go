package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xcoord/pkg/config/xconf"
	"github.com/omeyang/xcoord/pkg/distributed/xdlock"
	"github.com/omeyang/xcoord/pkg/distributed/xsingle"
	"github.com/omeyang/xcoord/pkg/lifecycle/xrun"
	"github.com/omeyang/xcoord/pkg/mq/xqueue"
	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/resilience/xlimit"
)

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// errDone 循环类命令达到指定次数后正常结束。
var errDone = errors.New("done")

func createCommands() []*cli.Command {
	return []*cli.Command{
		createSingleCommand(),
		createRateLimitCommand(),
		createLockCommand(),
		createQueueCommand(),
	}
}

// =============================================================================
// single
// =============================================================================

func createSingleCommand() *cli.Command {
	return &cli.Command{
		Name:  "single",
		Usage: "并发调用受单飞保护的任务，观察同一时刻只有一个执行",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "锁标识，为空时使用任务函数名"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"n"}, Usage: "并发调用数", Value: 3},
			&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Usage: "每次任务耗时", Value: time.Second},
			&cli.DurationFlag{Name: "max-wait", Usage: "获取锁的最长等待时间，0 表示一直等待"},
			&cli.BoolFlag{Name: "no-wait", Usage: "锁被占用时立即返回 busy"},
			&cli.DurationFlag{Name: "ttl", Usage: "锁的最长持有时间，0 表示不过期"},
			&cli.StringFlag{Name: "backend", Usage: "锁后端 (redis/redlock/etcd)"},
		},
		Action: withEnv(cmdSingle),
	}
}

func cmdSingle(ctx context.Context, cmd *cli.Command, e *env) error {
	workers := cmd.Int("workers")
	if workers <= 0 {
		return &usageError{msg: fmt.Sprintf("workers must be positive, got %d", workers)}
	}
	duration := cmd.Duration("duration")
	maxWait := cmd.Duration("max-wait")
	if cmd.Bool("no-wait") {
		maxWait = xsingle.NoWait
	}

	factory, err := e.lockFactory(backendOf(cmd, e))
	if err != nil {
		return err
	}

	job := func(ctx context.Context) (time.Duration, error) {
		select {
		case <-time.After(duration):
			return duration, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	guarded, err := xsingle.Wrap(xsingle.Config{
		Factory:           factory,
		Key:               cmd.String("key"),
		MaxProcessingTime: maxWait,
		TTL:               cmd.Duration("ttl"),
		Logger:            e.logger.With(xlog.Component("xsingle")),
		Observer:          e.observer,
	}, job)
	if err != nil {
		return err
	}

	g, _ := xrun.NewGroup(ctx, xrun.WithLogger(e.logger), xrun.WithName("single"))
	for i := range workers {
		g.GoWithName(fmt.Sprintf("worker-%d", i), func(ctx context.Context) error {
			fmt.Fprintf(e.out, "worker %d: calling\n", i)
			took, err := guarded(ctx)
			switch {
			case xsingle.IsBusy(err):
				fmt.Fprintf(e.out, "worker %d: busy\n", i)
				return nil
			case err != nil:
				return err
			}
			fmt.Fprintf(e.out, "worker %d: finished in %s\n", i, took)
			return nil
		})
	}
	return g.Wait()
}

// =============================================================================
// ratelimit
// =============================================================================

func createRateLimitCommand() *cli.Command {
	return &cli.Command{
		Name:  "ratelimit",
		Usage: "按固定间隔请求限流器并输出放行结果",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", Usage: "限流 key"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "窗口内最多放行次数"},
			&cli.DurationFlag{Name: "period", Aliases: []string{"p"}, Usage: "窗口长度"},
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "请求间隔", Value: 200 * time.Millisecond},
			&cli.IntFlag{Name: "count", Aliases: []string{"c"}, Usage: "请求次数，0 表示直到中断"},
			&cli.BoolFlag{Name: "reset", Usage: "开始前清空请求日志"},
			&cli.BoolFlag{Name: "watch-config", Usage: "配置文件变更时更新日志级别"},
		},
		Action: withEnv(cmdRateLimit),
	}
}

func cmdRateLimit(ctx context.Context, cmd *cli.Command, e *env) error {
	cfg := e.cfg.RateLimit
	if cmd.IsSet("key") {
		cfg.Key = cmd.String("key")
	}
	if cmd.IsSet("limit") {
		cfg.Limit = cmd.Int("limit")
	}
	if cmd.IsSet("period") {
		cfg.Period = cmd.Duration("period")
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{msg: err.Error()}
	}
	count := cmd.Int("count")
	if count < 0 {
		return &usageError{msg: fmt.Sprintf("count must not be negative, got %d", count)}
	}

	store, err := e.redisStore()
	if err != nil {
		return err
	}
	factory, err := e.lockFactory(backendRedis)
	if err != nil {
		return err
	}
	limiter, err := xlimit.New(store, factory, cfg,
		xlimit.WithLogger(e.logger.With(xlog.Component("xlimit"))),
		xlimit.WithObserver(e.observer),
	)
	if err != nil {
		return err
	}
	if cmd.Bool("reset") {
		if err := limiter.Reset(ctx); err != nil {
			return err
		}
	}

	n := 0
	workers := []func(context.Context) error{
		xrun.Ticker(cmd.Duration("interval"), true, func(ctx context.Context) error {
			err := limiter.Allow(ctx)
			switch {
			case xlimit.IsExceeded(err):
				fmt.Fprintf(e.out, "%d rate limit exceeded\n", n)
			case err != nil:
				return err
			default:
				fmt.Fprintf(e.out, "%d all good\n", n)
			}
			n++
			if count > 0 && n >= count {
				return errDone
			}
			return nil
		}),
	}
	if cmd.Bool("watch-config") {
		if e.src == nil {
			return &usageError{msg: "--watch-config requires --config"}
		}
		workers = append(workers, watchLogLevel(e))
	}

	err = xrun.Run(ctx, []xrun.Option{xrun.WithLogger(e.logger), xrun.WithName("ratelimit")}, workers...)
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

// watchLogLevel 监听配置文件，log.level 变化时调整日志级别。
func watchLogLevel(e *env) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := xconf.Watch(ctx, e.src, func(cfg xconf.Config, err error) {
			if err != nil {
				e.logger.Warn(ctx, "reload config failed", xlog.Err(err))
				return
			}
			raw := cfg.Client().String("log.level")
			if raw == "" {
				return
			}
			level, err := xlog.ParseLevel(raw)
			if err != nil {
				e.logger.Warn(ctx, "invalid log level in config", slog.String("level", raw))
				return
			}
			e.logger.SetLevel(level)
			e.logger.Info(ctx, "log level updated", slog.String("level", level.String()))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// =============================================================================
// lock
// =============================================================================

func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "获取锁，持有一段时间后释放",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "ttl", Usage: "锁的最长持有时间"},
			&cli.DurationFlag{Name: "wait", Aliases: []string{"w"}, Usage: "获取锁的最长等待时间"},
			&cli.DurationFlag{Name: "hold", Usage: "持有时间", Value: time.Second},
			&cli.BoolFlag{Name: "try", Usage: "只尝试一次，不等待"},
			&cli.StringFlag{Name: "backend", Usage: "锁后端 (redis/redlock/etcd)"},
		},
		Action: withEnv(cmdLock),
	}
}

func cmdLock(ctx context.Context, cmd *cli.Command, e *env) error {
	if cmd.Args().Len() != 1 {
		return &usageError{msg: "lock requires exactly one <key> argument"}
	}
	key := cmd.Args().First()

	ttl := e.cfg.Lock.TTL
	if cmd.IsSet("ttl") {
		ttl = cmd.Duration("ttl")
	}
	wait := e.cfg.Lock.BlockingTimeout
	if cmd.IsSet("wait") {
		wait = cmd.Duration("wait")
	}

	factory, err := e.lockFactory(backendOf(cmd, e))
	if err != nil {
		return err
	}

	opts := []xdlock.MutexOption{xdlock.WithTTL(ttl), xdlock.WithBlockingTimeout(wait)}
	var handle xdlock.LockHandle
	if cmd.Bool("try") {
		handle, err = factory.TryLock(ctx, key, opts...)
		if err == nil && handle == nil {
			fmt.Fprintf(e.out, "%s is held by another owner\n", key)
			return &exitError{code: 1}
		}
	} else {
		handle, err = factory.Lock(ctx, key, opts...)
		if xdlock.IsTimeout(err) {
			fmt.Fprintf(e.out, "%s is busy, gave up after %s\n", key, wait)
			return &exitError{code: 1}
		}
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(e.out, "acquired %s token=%s\n", handle.Key(), handle.Token())
	select {
	case <-time.After(cmd.Duration("hold")):
	case <-ctx.Done():
	}

	if err := handle.Unlock(ctx); err != nil {
		if errors.Is(err, xdlock.ErrNotLocked) {
			fmt.Fprintf(e.out, "%s expired before release\n", handle.Key())
			return &exitError{code: 1}
		}
		return err
	}
	fmt.Fprintf(e.out, "released %s\n", handle.Key())
	return ctx.Err()
}

// =============================================================================
// queue
// =============================================================================

func createQueueCommand() *cli.Command {
	keyFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "队列 key"}
	}
	return &cli.Command{
		Name:  "queue",
		Usage: "阻塞队列的发布与消费",
		Commands: []*cli.Command{
			{
				Name:      "publish",
				Usage:     "发布 JSON 消息",
				ArgsUsage: "<json>...",
				Flags:     []cli.Flag{keyFlag()},
				Action:    withEnv(cmdQueuePublish),
			},
			{
				Name:  "consume",
				Usage: "消费消息并逐行输出",
				Flags: []cli.Flag{
					keyFlag(),
					&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "等待超时，0 表示一直等待"},
					&cli.IntFlag{Name: "count", Aliases: []string{"c"}, Usage: "消费条数，0 表示直到队列为空或中断"},
				},
				Action: withEnv(cmdQueueConsume),
			},
		},
	}
}

func newQueue(cmd *cli.Command, e *env, opts ...xqueue.Option) (*xqueue.Queue, error) {
	key := e.cfg.Queue.Key
	if cmd.IsSet("key") {
		key = cmd.String("key")
	}
	store, err := e.redisStore()
	if err != nil {
		return nil, err
	}
	opts = append([]xqueue.Option{
		xqueue.WithLogger(e.logger.With(xlog.Component("xqueue"))),
		xqueue.WithObserver(e.observer),
	}, opts...)
	return xqueue.New(store, key, opts...)
}

func cmdQueuePublish(ctx context.Context, cmd *cli.Command, e *env) error {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return &usageError{msg: "publish requires at least one <json> argument"}
	}
	msgs := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		if !json.Valid([]byte(arg)) {
			return &usageError{msg: fmt.Sprintf("invalid json %q", arg)}
		}
		msgs = append(msgs, json.RawMessage(arg))
	}

	q, err := newQueue(cmd, e)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := q.Publish(ctx, msg); err != nil {
			return err
		}
	}
	fmt.Fprintf(e.out, "published %d message(s) to %s\n", len(msgs), q.Key())
	return nil
}

func cmdQueueConsume(ctx context.Context, cmd *cli.Command, e *env) error {
	timeout := e.cfg.Queue.BlockingTimeout
	if cmd.IsSet("timeout") {
		timeout = cmd.Duration("timeout")
	}
	count := cmd.Int("count")
	if count < 0 {
		return &usageError{msg: fmt.Sprintf("count must not be negative, got %d", count)}
	}

	q, err := newQueue(cmd, e, xqueue.WithBlockingTimeout(timeout))
	if err != nil {
		return err
	}
	for n := 0; count == 0 || n < count; n++ {
		var msg json.RawMessage
		err := q.Consume(ctx, &msg)
		switch {
		case errors.Is(err, xqueue.ErrEmpty):
			fmt.Fprintln(e.out, "queue is empty")
			return nil
		case errors.Is(err, xqueue.ErrDecode):
			fmt.Fprintf(e.out, "skip message: %v\n", err)
			continue
		case err != nil:
			return err
		}
		fmt.Fprintln(e.out, strings.TrimSpace(string(msg)))
	}
	return nil
}

// backendOf 返回命令指定的锁后端，未指定时使用配置。
func backendOf(cmd *cli.Command, e *env) string {
	if cmd.IsSet("backend") {
		return cmd.String("backend")
	}
	return e.cfg.Lock.Backend
}
