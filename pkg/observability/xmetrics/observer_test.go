package xmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ctxKey struct{}

type nilObserver struct{}

func (nilObserver) Start(context.Context, SpanOptions) (context.Context, Span) {
	return nil, nil
}

func TestStart_NilObserver_ReturnsNoop(t *testing.T) {
	//nolint:staticcheck // nil ctx 归一化
	ctx, span := Start(nil, nil, SpanOptions{Component: "xdlock"})
	assert.NotNil(t, ctx)
	assert.IsType(t, NoopSpan{}, span)
	assert.NotPanics(t, func() { span.End(Result{}) })
}

func TestStart_ObserverReturnsNil_FallsBack(t *testing.T) {
	parent := context.WithValue(context.Background(), ctxKey{}, "v")
	ctx, span := Start(parent, nilObserver{}, SpanOptions{})
	assert.Equal(t, parent, ctx)
	assert.IsType(t, NoopSpan{}, span)
}

func TestNoopObserver_Start(t *testing.T) {
	//nolint:staticcheck // nil ctx 归一化
	ctx, span := NoopObserver{}.Start(nil, SpanOptions{})
	assert.Equal(t, context.Background(), ctx)
	span.End(Result{Status: StatusBusy})
}

func TestAttrConstructors(t *testing.T) {
	assert.Equal(t, Attr{Key: "key", Value: "lock:a"}, String("key", "lock:a"))
	assert.Equal(t, Attr{Key: "n", Value: 3}, Int("n", 3))
	assert.Equal(t, Attr{Key: "wait", Value: time.Second}, Duration("wait", time.Second))
}
