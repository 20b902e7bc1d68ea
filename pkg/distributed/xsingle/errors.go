package xsingle

import "errors"

var (
	// ErrBusy 在最长等待时间内未获取到锁，另一个执行正在进行。
	ErrBusy = errors.New("xsingle: busy")

	// ErrNilFactory 未配置锁工厂。
	ErrNilFactory = errors.New("xsingle: lock factory is nil")

	// ErrNilFunc 被包装的函数为空。
	ErrNilFunc = errors.New("xsingle: func is nil")

	// ErrInvalidDuration MaxProcessingTime 或 TTL 为负数。
	ErrInvalidDuration = errors.New("xsingle: duration must not be negative")
)

// IsBusy 判断错误是否为 ErrBusy。
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}
