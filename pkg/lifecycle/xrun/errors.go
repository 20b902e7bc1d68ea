package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 因收到系统信号而退出，配合 errors.Is 使用。
	ErrSignal = errors.New("xrun: received signal")

	ErrNilFunc         = errors.New("xrun: nil function")
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 携带触发退出的信号。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("xrun: received signal %v", e.Signal)
}

func (e *SignalError) Unwrap() error {
	return ErrSignal
}
