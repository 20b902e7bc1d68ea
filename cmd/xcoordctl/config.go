package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xcoord/pkg/config/xconf"
	"github.com/omeyang/xcoord/pkg/resilience/xlimit"
)

// AppConfig 命令行工具的配置，可由 --config 指定的 YAML/JSON 文件加载，
// 命令行参数优先于文件。
type AppConfig struct {
	Redis     RedisConfig   `koanf:"redis"`
	Redlock   RedlockConfig `koanf:"redlock"`
	Etcd      EtcdConfig    `koanf:"etcd"`
	Log       LogConfig     `koanf:"log"`
	Lock      LockConfig    `koanf:"lock"`
	RateLimit xlimit.Config `koanf:"ratelimit"`
	Queue     QueueConfig   `koanf:"queue"`
}

// RedisConfig 单节点 Redis。
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RedlockConfig Redlock 使用的独立 Redis 节点。
type RedlockConfig struct {
	Addrs []string `koanf:"addrs"`
}

// EtcdConfig etcd 集群。
type EtcdConfig struct {
	Endpoints   []string      `koanf:"endpoints"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// LogConfig 日志输出。File 非空时写入文件并按大小轮转。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// LockConfig 锁默认参数。
type LockConfig struct {
	Backend         string        `koanf:"backend"`
	TTL             time.Duration `koanf:"ttl"`
	BlockingTimeout time.Duration `koanf:"blocking_timeout"`
}

// QueueConfig 队列默认参数。
type QueueConfig struct {
	Key             string        `koanf:"key"`
	BlockingTimeout time.Duration `koanf:"blocking_timeout"`
}

// 锁后端
const (
	backendRedis   = "redis"
	backendRedlock = "redlock"
	backendEtcd    = "etcd"
)

func defaultConfig() AppConfig {
	return AppConfig{
		Redis: RedisConfig{Addr: "localhost:6379"},
		Etcd: EtcdConfig{
			Endpoints:   []string{"localhost:2379"},
			DialTimeout: 5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Lock: LockConfig{
			Backend:         backendRedis,
			TTL:             10 * time.Second,
			BlockingTimeout: 5 * time.Second,
		},
		RateLimit: xlimit.Config{Key: "xcoordctl:ratelimit", Limit: 3, Period: time.Second},
		Queue:     QueueConfig{Key: "xcoordctl:queue"},
	}
}

// loadConfig 依次应用默认值、配置文件与全局参数。
func loadConfig(cmd *cli.Command) (AppConfig, xconf.Config, error) {
	cfg := defaultConfig()

	var src xconf.Config
	if path := cmd.String("config"); path != "" {
		c, err := xconf.New(path)
		if err != nil {
			return cfg, nil, err
		}
		if err := c.Unmarshal("", &cfg); err != nil {
			return cfg, nil, err
		}
		src = c
	}

	if cmd.IsSet("redis-addr") {
		cfg.Redis.Addr = cmd.String("redis-addr")
	}
	if cmd.IsSet("redis-password") {
		cfg.Redis.Password = cmd.String("redis-password")
	}
	if cmd.IsSet("redis-db") {
		cfg.Redis.DB = cmd.Int("redis-db")
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("log-file") {
		cfg.Log.File = cmd.String("log-file")
	}

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, nil, &usageError{msg: "redis address must not be empty"}
	}
	if cfg.Redis.DB < 0 {
		return cfg, nil, &usageError{msg: fmt.Sprintf("invalid redis db %d", cfg.Redis.DB)}
	}
	return cfg, src, nil
}
