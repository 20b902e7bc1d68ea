// Package xsingle 提供跨进程的单飞执行保护。
//
// 被保护的函数以稳定的 key 标识（默认为函数的完整限定名）。
// 每次调用先获取该 key 的分布式锁，执行完成后无条件释放（包括返回错误与 panic），
// 因此在整个集群内，同一 key 的执行在时间上不会重叠；不同 key 互不影响。
//
// # 两种构造方式
//
//	// 立即包装
//	run, err := xsingle.Wrap(xsingle.Config{Factory: factory, MaxProcessingTime: 5 * time.Second}, job)
//
//	// 先配置，后包装
//	guard, err := xsingle.Decorator[Report](cfg)
//	run := guard(buildReport)
//
// # 繁忙
//
// 在 MaxProcessingTime 内未获取到锁时返回 [ErrBusy]，MaxProcessingTime 为
// [NoWait] 时只尝试一次。
// 错误链中不包含 xdlock 的错误类型。存储异常原样返回。
package xsingle
