package xconf

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 合并连续文件事件的窗口。
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback 在每次重载后调用，err 非 nil 表示重载或监听失败，此时配置保持不变。
type WatchCallback func(cfg Config, err error)

// WatchOption 配置 Watch。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖窗口，非正值被忽略。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 监听配置文件变更并重载，阻塞直到 ctx 结束，返回 ctx 的错误。
//
// 监听的是文件所在目录，编辑器先删除再创建或 rename 覆盖的写法也能被捕获。
func Watch(ctx context.Context, cfg Config, onChange WatchCallback, opts ...WatchOption) error {
	if ctx == nil {
		return ErrNilContext
	}
	if onChange == nil {
		return ErrNilCallback
	}
	kc, ok := cfg.(*koanfConfig)
	if !ok || kc.path == "" {
		return ErrNotReloadable
	}
	o := watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("xconf: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	dir, name := filepath.Dir(kc.path), filepath.Base(kc.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("xconf: watch %s: %w", dir, err)
	}

	timer := time.NewTimer(o.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			timer.Reset(o.debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onChange(kc, fmt.Errorf("xconf: watch: %w", err))
		case <-timer.C:
			onChange(kc, kc.Reload())
		}
	}
}
