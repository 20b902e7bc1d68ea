package xlimit

import "time"

// Config 限流规则：任意 Period 长度的滑动窗口内最多放行 Limit 次。
type Config struct {
	// Key 请求日志的存储 key，共享同一 Key 的所有进程共享配额。
	Key string `koanf:"key"`

	// Limit 窗口内最多放行次数，0 表示拒绝所有请求。
	Limit int `koanf:"limit"`

	// Period 窗口长度。
	Period time.Duration `koanf:"period"`
}

// Validate 校验配置。
func (c Config) Validate() error {
	switch {
	case c.Key == "":
		return ErrEmptyKey
	case c.Limit < 0:
		return ErrInvalidLimit
	case c.Period <= 0:
		return ErrInvalidPeriod
	}
	return nil
}

// lockKey 保护请求日志的锁名。
func (c Config) lockKey() string {
	return c.Key + "_lock"
}
