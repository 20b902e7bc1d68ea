// Package mq 提供消息队列相关的子包。
//
// 子包列表：
//   - xqueue: 基于 Redis 列表的阻塞队列，JSON 编码消息
package mq
