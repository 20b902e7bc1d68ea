// Package xstore 定义协调原语依赖的共享 KV 存储能力，并提供 Redis 与 etcd 适配实现。
//
// # 能力拆分
//
// 不同组件只依赖自己需要的最小能力：
//   - AtomicStore: 条件写入（SET NX + 过期）与原子比较删除，分布式锁只依赖它
//   - ListStore: 列表的头部写入、长度、下标读取、裁剪，滑动窗口限流器的时间戳日志依赖它
//   - QueueStore: 尾部写入与阻塞弹出，阻塞队列依赖它
//   - Store: 以上全部能力 + Close
//
// # 后端
//
//	| 能力 | Redis (NewRedis) | etcd (NewEtcd) |
//	|------|------------------|----------------|
//	| AtomicStore | SET NX PX + Lua 脚本 | Txn + Lease |
//	| ListStore | 原生列表 | 不支持 |
//	| QueueStore | RPUSH / BLPOP | 不支持 |
//
// 单条命令的原子性由存储保证；多条命令组合的原子性需要调用方自行加锁（见 xdlock）。
//
// # 生命周期
//
// NewRedis 接管传入的客户端，Close 时一并关闭；NewEtcd 同理。
// 如需共享客户端，请使用 WithBorrowedClient。
package xstore
