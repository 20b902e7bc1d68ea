package xlimit

import "errors"

var (
	// ErrBusy 在锁等待超时内未能进入临界区，与 xdlock.ErrLockTimeout 一同出现在错误链中。
	ErrBusy = errors.New("xlimit: busy")

	// ErrRateLimitExceeded 由 Allow 在请求被拒绝时返回。
	ErrRateLimitExceeded = errors.New("xlimit: rate limit exceeded")

	ErrNilStore      = errors.New("xlimit: store is nil")
	ErrNilLocker     = errors.New("xlimit: locker is nil")
	ErrNilContext    = errors.New("xlimit: nil context")
	ErrEmptyKey      = errors.New("xlimit: key is empty")
	ErrInvalidLimit  = errors.New("xlimit: limit must not be negative")
	ErrInvalidPeriod = errors.New("xlimit: period must be positive")

	// ErrInvalidEntry 请求日志中存在无法解析为时间戳的元素。
	ErrInvalidEntry = errors.New("xlimit: invalid log entry")
)

// IsBusy 判断错误是否因锁竞争导致。
func IsBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

// IsExceeded 判断错误是否为限流拒绝。
func IsExceeded(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded)
}
