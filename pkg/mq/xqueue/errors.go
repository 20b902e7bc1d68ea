package xqueue

import "errors"

var (
	// ErrEmpty 在有限的阻塞超时内没有收到消息。
	ErrEmpty = errors.New("xqueue: no message within timeout")

	ErrNilStore   = errors.New("xqueue: store is nil")
	ErrEmptyKey   = errors.New("xqueue: key is empty")
	ErrNilContext = errors.New("xqueue: nil context")
	ErrNilTarget  = errors.New("xqueue: decode target is nil")

	// ErrDecode 消息不是合法的 JSON 或与目标类型不匹配，消息已出队。
	ErrDecode = errors.New("xqueue: decode message")
)
