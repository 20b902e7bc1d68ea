// Package xlimit 提供基于滑动窗口日志的分布式限流。
//
// 请求日志以列表形式保存在共享存储中：头部是最近一次放行的时间戳，
// 列表长度不超过 Limit。判定与写入在 Key+"_lock" 分布式锁内完成
// (锁名默认不加前缀，可用 WithLockPrefix 修改)，
// 因此多个进程对同一 Key 的判定是串行的，任意 Period 长度的窗口内
// 放行次数不超过 Limit。
//
//	limiter, err := xlimit.New(store, locker, xlimit.Config{
//		Key:    "billing-api",
//		Limit:  10,
//		Period: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	if err := limiter.Allow(ctx); xlimit.IsExceeded(err) {
//		return errTooManyRequests
//	}
//
// # 错误
//
//   - Test 拒绝时返回 (false, nil)；Allow 拒绝时返回 [ErrRateLimitExceeded]
//   - 锁等待超时返回的错误同时匹配 [ErrBusy] 与 xdlock.ErrLockTimeout
//   - 存储异常原样向上传递
//
// 时间戳取自进程本地时钟，多个进程之间的时钟偏差会直接影响窗口判定。
//
// [HTTPMiddleware] 将限流器接入 net/http，拒绝时返回 429。
package xlimit
