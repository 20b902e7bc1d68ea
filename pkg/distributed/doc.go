// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 基于 token 的分布式锁，支持 Redis、etcd 与 Redlock
//   - xsingle: 单飞保护，同一 key 的函数调用在集群内串行执行
//
// 设计原则：
//   - 锁的全部状态保存在共享存储中，进程内不缓存持有信息
//   - 不续期：持有时间超过 TTL 后锁可能被其他进程获取
//   - 竞争以显式错误返回（超时、繁忙），与存储故障区分
package distributed
