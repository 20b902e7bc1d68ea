package xdlock

import "errors"

// 预定义错误。
// 使用 errors.Is 进行错误匹配，例如：
//
//	if errors.Is(err, xdlock.ErrLockTimeout) {
//	    // 资源繁忙，稍后再试
//	}
var (
	// ErrLockTimeout 在阻塞等待时间内未能获取锁。
	// 这是竞争下的预期结果，调用方应按"资源繁忙"处理，而非致命错误。
	ErrLockTimeout = errors.New("xdlock: lock acquisition timed out")

	// ErrLockHeld 锁被其他持有者占用。
	// TryLock 检测到此错误后返回 (nil, nil)，业务代码通常不会直接看到。
	ErrLockHeld = errors.New("xdlock: lock is held by another owner")

	// ErrNotLocked 解锁时锁已不属于当前持有者。
	// 锁已过期，或过期后被其他持有者重新获取；此时不会删除 key。
	ErrNotLocked = errors.New("xdlock: not locked")

	// ErrNilStore 存储为空。
	ErrNilStore = errors.New("xdlock: store is nil")

	// ErrNilClient 客户端为空。
	ErrNilClient = errors.New("xdlock: client is nil")

	// ErrNilContext ctx 为空。
	ErrNilContext = errors.New("xdlock: context must not be nil")

	// ErrFactoryClosed 工厂已关闭。
	// 在已关闭的工厂上获取锁时返回此错误；已持有的锁仍可解锁。
	ErrFactoryClosed = errors.New("xdlock: factory is closed")

	// ErrEmptyKey 锁 key 为空。
	// key 为空字符串或仅含空白时返回此错误。
	ErrEmptyKey = errors.New("xdlock: key must not be empty")

	// ErrKeyTooLong 锁 key 超过长度限制。
	// key 长度不能超过 maxKeyLength（512 字节）。
	ErrKeyTooLong = errors.New("xdlock: key exceeds maximum length of 512 bytes")

	// ErrTokenGeneration 生成锁 token 失败。
	ErrTokenGeneration = errors.New("xdlock: failed to generate token")
)

// IsTimeout 判断错误是否为获取锁超时。
func IsTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
