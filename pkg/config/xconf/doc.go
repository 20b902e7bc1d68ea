// Package xconf 基于 koanf 加载 YAML/JSON 配置。
//
//	cfg, err := xconf.New("xcoord.yaml")
//	if err != nil {
//		return err
//	}
//	var app AppConfig
//	if err := cfg.Unmarshal("", &app); err != nil {
//		return err
//	}
//
// [Watch] 监听文件变更并自动 Reload，适合作为 xrun 的一个 worker 运行。
package xconf
