package xqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
	"github.com/omeyang/xcoord/pkg/observability/xmetrics"
	"github.com/omeyang/xcoord/pkg/storage/xstore"
)

const componentName = "xqueue"

// Queue 存储列表上的 FIFO 队列，消息以 JSON 编码。
//
// Publish 追加到列表尾部，Consume 从头部阻塞弹出，
// 同一条消息只会被一个消费者取到。
type Queue struct {
	store xstore.QueueStore
	key   string
	opts  *options
}

// New 创建队列。store 的生命周期由调用方管理。
func New(store xstore.QueueStore, key string, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	o := &options{logger: xlog.Discard(), observer: xmetrics.NoopObserver{}}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &Queue{store: store, key: key, opts: o}, nil
}

// Key 返回队列的存储 key。
func (q *Queue) Key() string {
	return q.key
}

// Publish 将 msg 编码为 JSON 后入队。
func (q *Queue) Publish(ctx context.Context, msg any) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("xqueue: encode message: %w", err)
	}

	ctx, span := xmetrics.Start(ctx, q.opts.observer, q.spanOptions("publish", xmetrics.KindProducer))
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if _, err = q.store.RPush(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("xqueue: publish: %w", err)
	}
	return nil
}

// Consume 阻塞弹出一条消息并解码到 v。
//
// 配置了有限的阻塞超时且超时内无消息时返回 ErrEmpty；ctx 结束时返回 ctx 的错误。
// 解码失败返回 ErrDecode，此时消息已从队列移除。
func (q *Queue) Consume(ctx context.Context, v any) (err error) {
	if ctx == nil {
		return ErrNilContext
	}
	if v == nil {
		return ErrNilTarget
	}

	ctx, span := xmetrics.Start(ctx, q.opts.observer, q.spanOptions("consume", xmetrics.KindConsumer))
	defer func() {
		if errors.Is(err, ErrEmpty) {
			span.End(xmetrics.Result{Status: xmetrics.StatusBusy})
			return
		}
		span.End(xmetrics.Result{Err: err})
	}()

	_, raw, ok, err := q.store.BLPop(ctx, q.opts.blockingTimeout, q.key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEmpty
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		q.opts.logger.Warn(ctx, "drop undecodable message",
			slog.String("key", q.key), slog.Int("size", len(raw)), xlog.Err(err))
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}

// ConsumeMap 弹出一条 JSON 对象消息。
func (q *Queue) ConsumeMap(ctx context.Context) (map[string]any, error) {
	var m map[string]any
	if err := q.Consume(ctx, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (q *Queue) spanOptions(operation string, kind xmetrics.Kind) xmetrics.SpanOptions {
	return xmetrics.SpanOptions{
		Component: componentName,
		Operation: operation,
		Kind:      kind,
		Attrs:     []xmetrics.Attr{xmetrics.String("queue", q.key)},
	}
}
