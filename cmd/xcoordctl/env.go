package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/omeyang/xcoord/pkg/config/xconf"
	"github.com/omeyang/xcoord/pkg/distributed/xdlock"
	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
	"github.com/omeyang/xcoord/pkg/storage/xstore"
)

// env 单次命令执行所需的依赖，Close 按创建的逆序释放。
type env struct {
	cfg      AppConfig
	src      xconf.Config
	logger   xlog.LoggerWithLevel
	observer xmetrics.Observer
	out      io.Writer

	store   *xstore.RedisStore
	closers []func() error
}

func newEnv(cmd *cli.Command) (*env, error) {
	cfg, src, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	root := cmd.Root()
	b := xlog.New().
		SetOutput(root.ErrWriter).
		SetLevelString(cfg.Log.Level).
		SetFormat(cfg.Log.Format)
	if cfg.Log.File != "" {
		b = b.SetRotation(cfg.Log.File)
	}
	logger, cleanup, err := b.Build()
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}

	observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName("github.com/omeyang/xcoord/cmd/xcoordctl"))
	if err != nil {
		_ = cleanup()
		return nil, err
	}

	return &env{
		cfg:      cfg,
		src:      src,
		logger:   logger,
		observer: observer,
		out:      &syncWriter{w: root.Writer},
		closers:  []func() error{cleanup},
	}, nil
}

// redisStore 懒加载 Redis 存储，同一个 env 内复用。
func (e *env) redisStore() (*xstore.RedisStore, error) {
	if e.store != nil {
		return e.store, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     e.cfg.Redis.Addr,
		Password: e.cfg.Redis.Password,
		DB:       e.cfg.Redis.DB,
	})
	store, err := xstore.NewRedis(client)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	e.store = store
	e.closers = append(e.closers, store.Close)
	return store, nil
}

// lockFactory 按后端创建锁工厂。
func (e *env) lockFactory(backend string) (xdlock.Factory, error) {
	opts := []xdlock.FactoryOption{
		xdlock.WithLogger(e.logger.With(xlog.Component("xdlock"))),
		xdlock.WithObserver(e.observer),
	}

	var factory xdlock.Factory
	switch backend {
	case backendRedis, "":
		store, err := e.redisStore()
		if err != nil {
			return nil, err
		}
		if factory, err = xdlock.New(store, opts...); err != nil {
			return nil, err
		}
	case backendRedlock:
		if len(e.cfg.Redlock.Addrs) == 0 {
			return nil, &usageError{msg: "redlock backend requires redlock.addrs in config"}
		}
		clients := make([]redis.UniversalClient, 0, len(e.cfg.Redlock.Addrs))
		for _, addr := range e.cfg.Redlock.Addrs {
			c := redis.NewClient(&redis.Options{Addr: addr, Password: e.cfg.Redis.Password})
			clients = append(clients, c)
			e.closers = append(e.closers, c.Close)
		}
		rf, err := xdlock.NewRedlockFactory(clients, opts...)
		if err != nil {
			return nil, err
		}
		factory = rf
	case backendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   e.cfg.Etcd.Endpoints,
			DialTimeout: e.cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		store, err := xstore.NewEtcd(client)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		if factory, err = xdlock.New(store, opts...); err != nil {
			return nil, err
		}
	default:
		return nil, &usageError{msg: fmt.Sprintf("unknown lock backend %q", backend)}
	}

	e.closers = append(e.closers, func() error { return factory.Close(context.Background()) })
	return factory, nil
}

func (e *env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// withEnv 为命令准备 env，命令结束后释放。
func withEnv(fn func(ctx context.Context, cmd *cli.Command, e *env) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		e, err := newEnv(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := e.Close(); cerr != nil {
				e.logger.Warn(ctx, "release resources failed", xlog.Err(cerr))
			}
		}()
		return fn(ctx, cmd, e)
	}
}

// syncWriter 多个 worker 并发输出时保证每行完整。
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
