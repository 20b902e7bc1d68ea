package xstore

import "errors"

var (
	// ErrNilClient 客户端为空。
	ErrNilClient = errors.New("xstore: client is nil")

	// ErrClosed 存储已关闭。
	ErrClosed = errors.New("xstore: store is closed")

	// ErrNilContext ctx 为空。
	ErrNilContext = errors.New("xstore: context must not be nil")

	// ErrEmptyKey key 为空。
	ErrEmptyKey = errors.New("xstore: empty key")

	// ErrInvalidTTL TTL 为负数。
	ErrInvalidTTL = errors.New("xstore: ttl must not be negative")

	// ErrNoKeys BLPop 未指定任何 key。
	ErrNoKeys = errors.New("xstore: no keys given")
)
