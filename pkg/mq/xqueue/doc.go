// Package xqueue 提供基于共享存储列表的阻塞 FIFO 队列。
//
//	q, _ := xqueue.New(store, "my_queue")
//	_ = q.Publish(ctx, map[string]int{"a": 1})
//	msg, err := q.ConsumeMap(ctx) // {"a": 1}
//
// 消息编码为 JSON。Consume 默认一直阻塞直到收到消息或 ctx 结束，
// 通过 [WithBlockingTimeout] 设置有限超时后，超时返回 [ErrEmpty]。
// 队列不提供确认与重投，消息出队即视为已消费。
package xqueue
