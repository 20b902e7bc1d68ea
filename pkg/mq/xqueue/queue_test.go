package xqueue_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcoord/pkg/mq/xqueue"
	"github.com/omeyang/xcoord/pkg/storage/xstore"
)

func newQueue(t *testing.T, opts ...xqueue.Option) (*xqueue.Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := xstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q, err := xqueue.New(store, "my_queue", opts...)
	require.NoError(t, err)
	return q, mr
}

func TestQueue_FIFO(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, map[string]any{"a": 1}))
	require.NoError(t, q.Publish(ctx, map[string]any{"b": 2}))
	require.NoError(t, q.Publish(ctx, map[string]any{"c": 3}))

	for _, want := range []map[string]any{{"a": 1.0}, {"b": 2.0}, {"c": 3.0}} {
		got, err := q.ConsumeMap(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQueue_WireFormat(t *testing.T) {
	q, mr := newQueue(t)

	require.NoError(t, q.Publish(context.Background(), map[string]int{"a": 1}))
	list, err := mr.List("my_queue")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"a":1}`}, list)
	assert.Equal(t, "my_queue", q.Key())
}

type job struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestQueue_ConsumeStruct(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, job{ID: 7, Name: "reindex"}))
	var got job
	require.NoError(t, q.Consume(ctx, &got))
	assert.Equal(t, job{ID: 7, Name: "reindex"}, got)
}

func TestQueue_ConsumeWaitsForPublish(t *testing.T) {
	q, mr := newQueue(t)

	go func() {
		time.Sleep(100 * time.Millisecond)
		mr.Lpush("my_queue", `{"late":true}`)
	}()

	got, err := q.ConsumeMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"late": true}, got)
}

func TestQueue_EmptyAfterTimeout(t *testing.T) {
	q, _ := newQueue(t, xqueue.WithBlockingTimeout(time.Second))

	start := time.Now()
	_, err := q.ConsumeMap(context.Background())
	assert.ErrorIs(t, err, xqueue.ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestQueue_EmptyAfterShortTimeout(t *testing.T) {
	q, _ := newQueue(t, xqueue.WithBlockingTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := q.ConsumeMap(context.Background())
	assert.ErrorIs(t, err, xqueue.ErrEmpty)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestQueue_ContextCancelled(t *testing.T) {
	q, _ := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.ConsumeMap(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_DecodeError(t *testing.T) {
	q, mr := newQueue(t)
	mr.Lpush("my_queue", "not json")

	_, err := q.ConsumeMap(context.Background())
	assert.ErrorIs(t, err, xqueue.ErrDecode)
	assert.False(t, mr.Exists("my_queue"), "message removed")
}

func TestQueue_PublishUnencodable(t *testing.T) {
	q, mr := newQueue(t)

	err := q.Publish(context.Background(), make(chan int))
	require.Error(t, err)
	assert.False(t, mr.Exists("my_queue"))
}

func TestQueue_StoreError(t *testing.T) {
	q, mr := newQueue(t)
	mr.SetError("READONLY")

	err := q.Publish(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xqueue: publish")
}

func TestQueue_CompetingConsumers(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()
	for i := range 10 {
		require.NoError(t, q.Publish(ctx, i))
	}

	var mu sync.Mutex
	var seen []int
	var wg sync.WaitGroup
	for range 2 {
		wg.Go(func() {
			for range 5 {
				var v int
				if !assert.NoError(t, q.Consume(ctx, &v)) {
					return
				}
				mu.Lock()
				seen = append(seen, v)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestQueue_InvalidInput(t *testing.T) {
	_, err := xqueue.New(nil, "k")
	assert.ErrorIs(t, err, xqueue.ErrNilStore)

	q, _ := newQueue(t)
	store, err := xstore.NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = xqueue.New(store, "")
	assert.ErrorIs(t, err, xqueue.ErrEmptyKey)

	assert.ErrorIs(t, q.Consume(context.Background(), nil), xqueue.ErrNilTarget)
	//nolint:staticcheck // SA1012: 测试 nil ctx
	assert.ErrorIs(t, q.Publish(nil, 1), xqueue.ErrNilContext)
	//nolint:staticcheck // SA1012: 测试 nil ctx
	_, err = q.ConsumeMap(nil)
	assert.ErrorIs(t, err, xqueue.ErrNilContext)
}
