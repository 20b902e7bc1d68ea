// Package xdlock 提供基于共享 KV 存储的分布式互斥锁。
//
// # 核心概念
//
//   - Factory: 锁工厂，持有存储连接，提供 Lock/TryLock
//   - LockHandle: 一次成功的获取，封装唯一 token，只能由它释放
//   - MutexOption: 单次加锁的配置（前缀、TTL、阻塞超时、退避、token 生成）
//
// # 协议
//
// 加锁：SET key token NX [PX ttl]。key 已存在时按指数退避重试
// （默认首次 10ms，翻倍，上限 100ms，±10% 抖动），直到成功、阻塞超时或 ctx 结束。
// 阻塞超时返回 [ErrLockTimeout]，调用方应按"资源繁忙"处理。
//
// 解锁：比较存储中的值与 token，相等时删除，在存储端作为一个原子步骤执行
// （Redis 为 Lua 脚本，etcd 为事务）。值不匹配说明锁已过期并可能被他人获取，
// 此时返回 [ErrNotLocked] 且不删除 key。
//
// # 不续期
//
// 锁没有续期机制。业务执行时间超过 TTL 时，存储会删除 key，
// 其他进程可能在前一个持有者仍在运行时获取同一把锁。
// TTL 应大于业务最长执行时间；TTL 为 0 时锁只能被显式释放，持有者崩溃将导致锁永久残留。
//
// # 后端
//
//	| 工厂 | 存储 | 说明 |
//	|------|------|------|
//	| New(xstore.RedisStore) | 单个 Redis | 默认 |
//	| New(xstore.EtcdStore) | etcd 集群 | TTL 向上取整到秒 |
//	| NewRedlockFactory(clients) | 多个独立 Redis | Redlock 过半成功，TTL 为 0 时使用 8s |
//
// 详细使用示例请参考 example_test.go 中的 Example 函数。
package xdlock
