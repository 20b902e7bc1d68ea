package xconf

import "errors"

var (
	ErrEmptyPath         = errors.New("xconf: empty config path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	ErrLoadFailed        = errors.New("xconf: failed to load config")
	ErrParseFailed       = errors.New("xconf: failed to parse config")
	ErrUnmarshalFailed   = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable 配置来自字节数据，没有可重新读取的文件。
	ErrNotReloadable = errors.New("xconf: config has no backing file")

	ErrNilCallback = errors.New("xconf: nil watch callback")
	ErrNilContext  = errors.New("xconf: nil context")
)
