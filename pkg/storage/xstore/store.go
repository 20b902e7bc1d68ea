package xstore

import (
	"context"
	"time"
)

// AtomicStore 提供分布式锁所需的单步原子操作。
type AtomicStore interface {
	// SetNX 仅当 key 不存在时写入 value。
	// ttl > 0 时 key 在 ttl 后由存储自动删除；ttl == 0 表示不过期。
	// 返回 true 表示写入成功。
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete 仅当 key 当前值等于 value 时删除 key。
	// 比较与删除在存储端作为一个原子步骤执行。
	// 返回 true 表示已删除；key 不存在或值不匹配返回 false。
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Ping 检查存储连接是否正常。
	Ping(ctx context.Context) error
}

// ListStore 提供列表操作。每次调用单独原子，组合调用不具备原子性。
type ListStore interface {
	// LPush 将 values 依次写入列表头部，返回写入后的长度。
	LPush(ctx context.Context, key string, values ...string) (int64, error)

	// RPush 将 values 依次写入列表尾部，返回写入后的长度。
	RPush(ctx context.Context, key string, values ...string) (int64, error)

	// LLen 返回列表长度，key 不存在时返回 0。
	LLen(ctx context.Context, key string) (int64, error)

	// LIndex 返回下标 index 处的元素，支持负数下标（-1 为尾部）。
	// 元素不存在时 ok 为 false。
	LIndex(ctx context.Context, key string, index int64) (value string, ok bool, err error)

	// LTrim 仅保留 [start, stop] 区间的元素。
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Del 删除 keys，返回实际删除的数量。
	Del(ctx context.Context, keys ...string) (int64, error)
}

// QueueStore 提供阻塞队列所需的操作。
type QueueStore interface {
	// RPush 将 values 依次写入列表尾部，返回写入后的长度。
	RPush(ctx context.Context, key string, values ...string) (int64, error)

	// BLPop 从第一个非空列表头部弹出元素，最多等待 timeout。
	// timeout == 0 表示一直等待直到 ctx 结束，低于 1s 的 timeout 同样生效。
	// 超时未取到元素时 ok 为 false 且 err 为 nil。
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) (key, value string, ok bool, err error)
}

// Store 组合全部能力。
type Store interface {
	AtomicStore
	ListStore
	QueueStore

	// Close 释放底层连接。
	Close() error
}
