package xconf_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcoord/pkg/config/xconf"
)

type lockConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	BlockingTimeout time.Duration `koanf:"blocking_timeout"`
}

type appConfig struct {
	Redis struct {
		Addr string `koanf:"addr"`
		DB   int    `koanf:"db"`
	} `koanf:"redis"`
	Lock lockConfig `koanf:"lock"`
}

const yamlDoc = `
redis:
  addr: 127.0.0.1:6379
  db: 2
lock:
  ttl: 30s
  blocking_timeout: 1500ms
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_YAML(t *testing.T) {
	path := writeFile(t, "xcoord.yaml", yamlDoc)
	cfg, err := xconf.New(path)
	require.NoError(t, err)

	var app appConfig
	require.NoError(t, cfg.Unmarshal("", &app))
	assert.Equal(t, "127.0.0.1:6379", app.Redis.Addr)
	assert.Equal(t, 2, app.Redis.DB)
	assert.Equal(t, 30*time.Second, app.Lock.TTL)
	assert.Equal(t, 1500*time.Millisecond, app.Lock.BlockingTimeout)

	var lock lockConfig
	require.NoError(t, cfg.Unmarshal("lock", &lock))
	assert.Equal(t, app.Lock, lock)

	assert.Equal(t, xconf.FormatYAML, cfg.Format())
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, 2, cfg.Client().Int("redis.db"))
}

func TestNew_JSON(t *testing.T) {
	path := writeFile(t, "xcoord.json", `{"redis":{"addr":"redis:6379"}}`)
	cfg, err := xconf.New(path)
	require.NoError(t, err)
	assert.Equal(t, xconf.FormatJSON, cfg.Format())
	assert.Equal(t, "redis:6379", cfg.Client().String("redis.addr"))
}

func TestNew_Errors(t *testing.T) {
	_, err := xconf.New("")
	assert.ErrorIs(t, err, xconf.ErrEmptyPath)

	_, err = xconf.New("config.toml")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)

	_, err = xconf.New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, xconf.ErrLoadFailed)

	_, err = xconf.New(writeFile(t, "bad.json", "{not json"))
	assert.ErrorIs(t, err, xconf.ErrParseFailed)
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(yamlDoc), xconf.FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", cfg.Client().String("redis.addr"))
	assert.Empty(t, cfg.Path())
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrNotReloadable)

	empty, err := xconf.NewFromBytes(nil, xconf.FormatJSON)
	require.NoError(t, err)
	var app appConfig
	require.NoError(t, empty.Unmarshal("", &app))
	assert.Zero(t, app)

	_, err = xconf.NewFromBytes([]byte("a: 1"), "toml")
	assert.ErrorIs(t, err, xconf.ErrUnsupportedFormat)
}

func TestOptions(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`{"redis":{"addr":"x"}}`), xconf.FormatJSON,
		xconf.WithDelim("/"), xconf.WithTag("json"), nil)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Client().String("redis/addr"))

	var out struct {
		Addr string `json:"addr"`
	}
	require.NoError(t, cfg.Unmarshal("redis", &out))
	assert.Equal(t, "x", out.Addr)
}

func TestUnmarshal_TypeMismatch(t *testing.T) {
	cfg, err := xconf.NewFromBytes([]byte(`{"redis":{"db":"two"}}`), xconf.FormatJSON)
	require.NoError(t, err)
	var app appConfig
	assert.ErrorIs(t, cfg.Unmarshal("", &app), xconf.ErrUnmarshalFailed)
}

func TestReload_KeepsOldOnParseError(t *testing.T) {
	path := writeFile(t, "xcoord.yaml", "redis:\n  db: 1\n")
	cfg, err := xconf.New(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("redis:\n  db: 3\n"), 0o600))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 3, cfg.Client().Int("redis.db"))

	require.NoError(t, os.WriteFile(path, []byte("redis: [unterminated"), 0o600))
	assert.ErrorIs(t, cfg.Reload(), xconf.ErrParseFailed)
	assert.Equal(t, 3, cfg.Client().Int("redis.db"))
}

func TestWatch(t *testing.T) {
	path := writeFile(t, "xcoord.yaml", "log:\n  level: info\n")
	cfg, err := xconf.New(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- xconf.Watch(ctx, cfg, func(c xconf.Config, err error) {
			if err == nil {
				reloaded <- c.Client().String("log.level")
			}
		}, xconf.WithDebounce(20*time.Millisecond))
	}()

	// 等待监听注册完成
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600)
		select {
		case level := <-reloaded:
			return level == "debug"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_InvalidInput(t *testing.T) {
	fromBytes, err := xconf.NewFromBytes(nil, xconf.FormatYAML)
	require.NoError(t, err)
	noop := func(xconf.Config, error) {}

	assert.ErrorIs(t, xconf.Watch(context.Background(), fromBytes, noop), xconf.ErrNotReloadable)
	assert.ErrorIs(t, xconf.Watch(context.Background(), fromBytes, nil), xconf.ErrNilCallback)
	//nolint:staticcheck // SA1012: 测试 nil ctx
	assert.ErrorIs(t, xconf.Watch(nil, fromBytes, noop), xconf.ErrNilContext)
}
