package xdlock

import "context"

// =============================================================================
// LockHandle - 推荐的锁操作接口
// =============================================================================

// LockHandle 表示一次成功的锁获取。
//
// 每次 TryLock/Lock 成功都会返回一个新的 handle，内部封装了唯一 token。
// 只有持有该 token 的 handle 才能释放锁，不同获取之间不会互相干扰。
//
// # 使用模式
//
//	handle, err := factory.Lock(ctx, "my-resource", xdlock.WithBlockingTimeout(time.Second))
//	if xdlock.IsTimeout(err) {
//	    return errBusy // 资源繁忙
//	}
//	if err != nil {
//	    return err // 存储异常
//	}
//	defer handle.Unlock(ctx)
type LockHandle interface {
	// Unlock 释放锁。
	//
	// 比较 token 与删除 key 在存储端原子执行。
	// 返回 [ErrNotLocked] 表示锁已过期或被其他获取覆盖，此时 key 不会被删除。
	// 传入 nil ctx 返回 [ErrNilContext]。
	//
	// 当 ctx 已取消/超时时，Unlock 会使用独立清理上下文（5 秒超时），
	// 尽力完成解锁，避免锁残留到 TTL 到期。
	Unlock(ctx context.Context) error

	// Key 返回锁在存储中的完整 key（含前缀）。
	Key() string

	// Token 返回本次获取的唯一标识。
	Token() string
}

// Factory 定义锁工厂接口。
// 工厂持有存储连接，可在多次加锁之间共享。
type Factory interface {
	// TryLock 非阻塞式获取锁，只尝试一次。
	//
	// 成功时返回 LockHandle，锁被占用时返回 (nil, nil)。
	// err 非 nil 表示存储异常。
	TryLock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Lock 阻塞式获取锁。
	//
	// 按退避策略重试，直到获取成功、阻塞超时或 ctx 结束。
	//
	// 错误：
	//   - ErrLockTimeout: 阻塞超时仍未获取到锁
	//   - context.Canceled / context.DeadlineExceeded: 调用方 ctx 结束
	//   - 其他: 存储异常，立即返回不再重试
	Lock(ctx context.Context, key string, opts ...MutexOption) (LockHandle, error)

	// Health 健康检查，检查存储连接是否正常。
	Health(ctx context.Context) error

	// Close 关闭工厂，此后不能再获取锁，已获取的锁仍可释放。
	// 不关闭底层存储，存储的生命周期由调用者管理。重复调用返回 nil。
	//
	// ctx 参数当前未使用，保留以便未来支持带超时的优雅关闭。
	Close(ctx context.Context) error
}
