package xstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDeleteScript 仅当 key 的值等于 ARGV[1] 时删除 key。
// 返回 1 表示已删除，0 表示 key 不存在或已被其他持有者覆盖。
var compareAndDeleteScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// minBlockTimeout BLPOP 的超时精度为秒，低于 1s 的值会被 go-redis 提升到 1s。
const minBlockTimeout = time.Second

// shortPollInterval 剩余等待不足 minBlockTimeout 时改用 LPOP 轮询的间隔。
const shortPollInterval = 20 * time.Millisecond

// RedisStore 基于 Redis 的 Store 实现。
type RedisStore struct {
	client redis.UniversalClient
	opts   *options
	closed atomic.Bool
}

// 编译时接口检查
var _ Store = (*RedisStore)(nil)

// NewRedis 创建 Redis 存储。
// client 必须是已初始化的 redis.UniversalClient（单节点、哨兵或集群均可）。
func NewRedis(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &RedisStore{client: client, opts: o}, nil
}

// Client 返回底层 Redis 客户端。
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) check(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ctx == nil {
		return ErrNilContext
	}
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

// SetNX 仅当 key 不存在时写入。
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, ErrInvalidTTL
	}
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("xstore: setnx %q: %w", key, err)
	}
	return ok, nil
}

// CompareAndDelete 通过 Lua 脚本原子地比较并删除。
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := s.check(ctx, key); err != nil {
		return false, err
	}
	n, err := compareAndDeleteScript.Run(ctx, s.client, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("xstore: compare-and-delete %q: %w", key, err)
	}
	return n == 1, nil
}

// Ping 执行 PING。
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// LPush 写入列表头部。
func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if err := s.check(ctx, key); err != nil {
		return 0, err
	}
	n, err := s.client.LPush(ctx, key, toArgs(values)...).Result()
	if err != nil {
		return 0, fmt.Errorf("xstore: lpush %q: %w", key, err)
	}
	return n, nil
}

// RPush 写入列表尾部。
func (s *RedisStore) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	if err := s.check(ctx, key); err != nil {
		return 0, err
	}
	n, err := s.client.RPush(ctx, key, toArgs(values)...).Result()
	if err != nil {
		return 0, fmt.Errorf("xstore: rpush %q: %w", key, err)
	}
	return n, nil
}

// LLen 返回列表长度。
func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	if err := s.check(ctx, key); err != nil {
		return 0, err
	}
	n, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("xstore: llen %q: %w", key, err)
	}
	return n, nil
}

// LIndex 读取下标处元素。
func (s *RedisStore) LIndex(ctx context.Context, key string, index int64) (string, bool, error) {
	if err := s.check(ctx, key); err != nil {
		return "", false, err
	}
	v, err := s.client.LIndex(ctx, key, index).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("xstore: lindex %q: %w", key, err)
	}
	return v, true, nil
}

// LTrim 裁剪列表。
func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	if err := s.check(ctx, key); err != nil {
		return err
	}
	if err := s.client.LTrim(ctx, key, start, stop).Err(); err != nil {
		return fmt.Errorf("xstore: ltrim %q: %w", key, err)
	}
	return nil
}

// Del 删除 keys。
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, ErrNoKeys
	}
	for _, k := range keys {
		if err := s.check(ctx, k); err != nil {
			return 0, err
		}
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("xstore: del: %w", err)
	}
	return n, nil
}

// BLPop 阻塞弹出。
//
// 底层 BLPOP 在超时为 0 时不响应 ctx 取消，因此按 pollInterval 分段阻塞，
// 每段结束后检查 ctx 与总超时。剩余时间不足 1s 时 BLPOP 无法表达，
// 改为按 shortPollInterval 轮询 LPOP，总等待不会超过 timeout。
func (s *RedisStore) BLPop(ctx context.Context, timeout time.Duration, keys ...string) (string, string, bool, error) {
	if len(keys) == 0 {
		return "", "", false, ErrNoKeys
	}
	for _, k := range keys {
		if err := s.check(ctx, k); err != nil {
			return "", "", false, err
		}
	}
	if timeout < 0 {
		return "", "", false, ErrInvalidTTL
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		wait := s.opts.pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return "", "", false, nil
			}
			if remaining < minBlockTimeout {
				return s.pollUntil(ctx, deadline, keys)
			}
			wait = min(wait, remaining)
		}
		wait = max(wait, minBlockTimeout)

		res, err := s.client.BLPop(ctx, wait, keys...).Result()
		switch {
		case err == nil:
			if len(res) != 2 {
				return "", "", false, fmt.Errorf("xstore: blpop: unexpected reply length %d", len(res))
			}
			return res[0], res[1], true, nil
		case errors.Is(err, redis.Nil):
			// 本段超时，继续等待
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", "", false, ctxErr
			}
			return "", "", false, fmt.Errorf("xstore: blpop: %w", err)
		}

		if err := ctx.Err(); err != nil {
			return "", "", false, err
		}
	}
}

// pollUntil 在 deadline 之前轮询 keys，按顺序返回第一个非空列表的头部元素。
func (s *RedisStore) pollUntil(ctx context.Context, deadline time.Time, keys []string) (string, string, bool, error) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", "", false, ctx.Err()
		case <-timer.C:
		}

		for _, k := range keys {
			v, err := s.client.LPop(ctx, k).Result()
			switch {
			case err == nil:
				return k, v, true, nil
			case errors.Is(err, redis.Nil):
			default:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", "", false, ctxErr
				}
				return "", "", false, fmt.Errorf("xstore: lpop: %w", err)
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", "", false, nil
		}
		timer.Reset(min(shortPollInterval, remaining))
	}
}

// Close 关闭存储。重复关闭返回 ErrClosed。
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if s.opts.borrowed {
		return nil
	}
	return s.client.Close()
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
