// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xstore: 协调原语使用的原子 KV 与列表存储，Redis 与 etcd 实现
package storage
