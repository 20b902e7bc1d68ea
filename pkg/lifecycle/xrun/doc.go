// Package xrun 管理命令行进程内的一组并发 worker。
//
// [Group] 封装 errgroup：任一 worker 返回错误即取消其余 worker。
// [Run] 额外监听 SIGINT/SIGTERM，收到信号时以 [SignalError] 退出。
// [Ticker] 把周期任务包装为 worker。
package xrun
