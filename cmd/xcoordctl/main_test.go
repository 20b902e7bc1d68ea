package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/internal/pool.(*ConnPool).tryDial"),
		goleak.IgnoreTopFunction("github.com/redis/go-redis/v9/maintnotifications.(*CircuitBreakerManager).cleanupLoop"),
		goleak.IgnoreTopFunction("time.Sleep"),
	)
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (r result) lines() []string {
	return strings.Split(strings.TrimSpace(r.stdout), "\n")
}

func runCLI(t *testing.T, mr *miniredis.Miniredis, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := []string{"xcoordctl", "--log-level", "error"}
	if mr != nil {
		full = append(full, "--redis-addr", mr.Addr())
	}
	code := run(context.Background(), append(full, args...), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)

	res := runCLI(t, mr, "ratelimit", "--key", "api", "--limit", "2", "--period", "1h",
		"--interval", "5ms", "--count", "4")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{
		"0 all good",
		"1 all good",
		"2 rate limit exceeded",
		"3 rate limit exceeded",
	}, res.lines())

	n, err := mr.List("api")
	require.NoError(t, err)
	assert.Len(t, n, 2)
}

func TestRateLimit_Reset(t *testing.T) {
	mr := miniredis.RunT(t)
	args := []string{"ratelimit", "--key", "api", "--limit", "1", "--period", "1h", "--interval", "5ms", "--count", "1"}

	require.Equal(t, 0, runCLI(t, mr, args...).code)
	assert.Equal(t, []string{"0 rate limit exceeded"}, runCLI(t, mr, args...).lines())
	assert.Equal(t, []string{"0 all good"}, runCLI(t, mr, append(args, "--reset")...).lines())
}

func TestRateLimit_FromConfigFile(t *testing.T) {
	mr := miniredis.RunT(t)
	path := filepath.Join(t.TempDir(), "xcoordctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  addr: `+mr.Addr()+`
log:
  level: error
ratelimit:
  key: from-file
  limit: 1
  period: 1h
`), 0o600))

	res := runCLI(t, nil, "--config", path, "ratelimit", "--interval", "5ms", "--count", "2")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{"0 all good", "1 rate limit exceeded"}, res.lines())
	assert.True(t, mr.Exists("from-file"))
}

func TestRateLimit_InvalidArgs(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Equal(t, 2, runCLI(t, mr, "ratelimit", "--limit=-1").code)
	assert.Equal(t, 2, runCLI(t, mr, "ratelimit", "--period", "0s").code)
	assert.Equal(t, 2, runCLI(t, mr, "ratelimit", "--count=-1").code)
	assert.Equal(t, 2, runCLI(t, mr, "ratelimit", "--watch-config").code)
}

func TestSingle_Serializes(t *testing.T) {
	mr := miniredis.RunT(t)

	start := time.Now()
	res := runCLI(t, mr, "single", "--key", "job", "-n", "3", "-d", "50ms")
	elapsed := time.Since(start)

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 3, strings.Count(res.stdout, "finished in 50ms"))
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.False(t, mr.Exists("lock:job"))
}

func TestSingle_Busy(t *testing.T) {
	mr := miniredis.RunT(t)

	res := runCLI(t, mr, "single", "--key", "job", "-n", "2", "-d", "300ms", "--max-wait", "30ms")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 1, strings.Count(res.stdout, "finished"))
	assert.Equal(t, 1, strings.Count(res.stdout, ": busy"))
}

func TestSingle_NoWait(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("lock:job", "someone-else"))

	start := time.Now()
	res := runCLI(t, mr, "single", "--key", "job", "-n", "2", "-d", "10ms", "--no-wait")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, 2, strings.Count(res.stdout, ": busy"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSingle_InvalidArgs(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Equal(t, 2, runCLI(t, mr, "single", "-n", "0").code)
	assert.Equal(t, 2, runCLI(t, mr, "single", "--backend", "zookeeper").code)
	assert.Equal(t, 2, runCLI(t, mr, "single", "--backend", "redlock").code)
}

func TestLock_AcquireAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)

	res := runCLI(t, mr, "lock", "--hold", "10ms", "--ttl", "5s", "orders")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "acquired lock:orders token=")
	assert.Contains(t, res.stdout, "released lock:orders")
	assert.False(t, mr.Exists("lock:orders"))
}

func TestLock_Held(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("lock:orders", "someone-else"))

	res := runCLI(t, mr, "lock", "--try", "orders")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "orders is held by another owner")

	res = runCLI(t, mr, "lock", "--wait", "50ms", "orders")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "orders is busy")

	v, err := mr.Get("lock:orders")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestLock_ExpiredBeforeRelease(t *testing.T) {
	mr := miniredis.RunT(t)

	// 模拟锁过期后被他人重新获取
	done := make(chan result, 1)
	go func() { done <- runCLI(t, mr, "lock", "--hold", "300ms", "orders") }()
	require.Eventually(t, func() bool { return mr.Exists("lock:orders") }, time.Second, 5*time.Millisecond)
	require.NoError(t, mr.Set("lock:orders", "someone-else"))

	res := <-done
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "expired before release")
}

func TestLock_InvalidArgs(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Equal(t, 2, runCLI(t, mr, "lock").code)
	assert.Equal(t, 2, runCLI(t, mr, "lock", "a", "b").code)
}

func TestQueue_PublishAndConsume(t *testing.T) {
	mr := miniredis.RunT(t)

	res := runCLI(t, mr, "queue", "publish", `{"a": 1}`, `{"b":2}`)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "published 2 message(s) to xcoordctl:queue\n", res.stdout)

	res = runCLI(t, mr, "queue", "consume", "--count", "2")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, res.lines())
}

func TestQueue_ConsumeEmpty(t *testing.T) {
	mr := miniredis.RunT(t)

	res := runCLI(t, mr, "queue", "consume", "--key", "empty", "--timeout", "1s")

	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "queue is empty\n", res.stdout)
}

func TestQueue_SkipsUndecodable(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := mr.Push("jobs", "not json", `{"ok":true}`)
	require.NoError(t, err)

	res := runCLI(t, mr, "queue", "consume", "--key", "jobs", "--timeout", "1s")

	require.Equal(t, 0, res.code, res.stderr)
	lines := res.lines()
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "skip message")
	assert.Equal(t, `{"ok":true}`, lines[1])
	assert.Equal(t, "queue is empty", lines[2])
}

func TestQueue_InvalidArgs(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Equal(t, 2, runCLI(t, mr, "queue", "publish").code)
	assert.Equal(t, 2, runCLI(t, mr, "queue", "publish", "{broken").code)
	assert.Equal(t, 2, runCLI(t, mr, "queue", "consume", "--count=-1").code)
}

func TestGlobalConfigErrors(t *testing.T) {
	mr := miniredis.RunT(t)

	assert.Equal(t, 2, runCLI(t, mr, "--redis-db=-1", "lock", "x").code)
	assert.Equal(t, 2, runCLI(t, mr, "--log-format", "xml", "lock", "x").code)
	assert.Equal(t, 2, runCLI(t, mr, "--redis-addr", " ", "lock", "x").code)

	res := runCLI(t, mr, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "lock", "x")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "错误")
}

func TestStoreUnavailable(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"xcoordctl", "--log-level", "error", "--redis-addr", "127.0.0.1:1", "lock", "--wait", "100ms", "x"},
		&stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "错误")
}

func TestIsCLIUsageError(t *testing.T) {
	assert.False(t, isCLIUsageError(assert.AnError))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"xcoordctl", "--no-such-flag"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}
