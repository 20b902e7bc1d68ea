// xcoordctl 演示并运维 xcoord 的分布式协调原语。
//
// 用法:
//
//	xcoordctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config          配置文件 (.yaml/.yml/.json)
//	    --redis-addr      Redis 地址 (默认: localhost:6379)
//	    --redis-password  Redis 密码
//	    --redis-db        Redis 数据库编号
//	    --log-level       日志级别 (debug/info/warn/error)
//	    --log-format      日志格式 (text/json)
//	    --log-file        日志文件，按大小轮转
//
// 命令:
//
//	single             并发调用受单飞保护的任务
//	ratelimit          按固定间隔请求滑动窗口限流器
//	lock <key>         获取锁，持有一段时间后释放
//	queue publish      发布 JSON 消息
//	queue consume      消费消息
//
// 退出码:
//
//	0: 成功
//	1: 执行失败，或锁被占用 / 已过期
//	2: 参数错误
//	130: 被信号中断
//
// 示例:
//
//	xcoordctl single -n 3 -d 1s
//	xcoordctl ratelimit --limit 1 --period 2s --interval 500ms --count 6
//	xcoordctl lock --ttl 5s --hold 3s orders
//	xcoordctl queue publish '{"a":1}' '{"b":2}'
//	xcoordctl queue consume --timeout 1s
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xcoord/pkg/lifecycle/xrun"
)

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xcoordctl",
		Usage:   "分布式锁、单飞保护、限流与队列的命令行工具",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "配置文件路径"},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis 地址", Value: "localhost:6379"},
			&cli.StringFlag{Name: "redis-password", Usage: "Redis 密码"},
			&cli.IntFlag{Name: "redis-db", Usage: "Redis 数据库编号"},
			&cli.StringFlag{Name: "log-level", Usage: "日志级别", Value: "info"},
			&cli.StringFlag{Name: "log-format", Usage: "日志格式 (text/json)", Value: "text"},
			&cli.StringFlag{Name: "log-file", Usage: "日志文件路径"},
		},
		Commands: createCommands(),
		// 退出码由 run 统一映射，不允许框架直接 os.Exit
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(cmd.Root().ErrWriter, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := createApp()
	app.Writer = stdout
	app.ErrWriter = stderr

	err := app.Run(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if errors.Is(err, xrun.ErrSignal) {
		fmt.Fprintf(stderr, "中断: %v\n", err)
		return 130
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}

// isCLIUsageError 识别 urfave/cli 产生的参数解析错误。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, s := range []string{
		"flag provided but not defined",
		"invalid value",
		"No help topic for",
		"Required flag",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
