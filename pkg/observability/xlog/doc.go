// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xcoord.log", xlog.WithMaxSize(50)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// Builder 为 first-error-wins，配置错误在 Build 时返回。
//
// # 链路关联
//
// 默认启用 [TraceHandler]：context 中存在有效的 OpenTelemetry SpanContext 时，
// 每条日志附带 trace_id 和 span_id。对 Logger 调用 WithGroup 后，这两个字段
// 会落在分组下。
//
// # 组件默认值
//
// xdlock、xsingle、xlimit 等组件未注入 Logger 时使用 [Discard]。
package xlog
