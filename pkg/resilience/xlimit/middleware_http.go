package xlimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/omeyang/xcoord/pkg/observability/xlog"
)

// MiddlewareOption 配置 HTTP 中间件。
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	denyHandler http.Handler
	skip        func(*http.Request) bool
	failClosed  bool
}

// WithDenyHandler 替换拒绝时的响应，默认返回 429 与 Retry-After。
func WithDenyHandler(h http.Handler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if h != nil {
			o.denyHandler = h
		}
	}
}

// WithSkipFunc 返回 true 的请求不参与限流。
func WithSkipFunc(fn func(*http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// WithFailClosed 限流器出错（存储异常、锁繁忙）时拒绝请求，默认放行。
func WithFailClosed(enable bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.failClosed = enable
	}
}

// HTTPMiddleware 用 limiter 保护 next，所有请求共享同一个配额。
//
//	mux.Handle("/api/", xlimit.HTTPMiddleware(limiter)(apiHandler))
func HTTPMiddleware(limiter *Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("xlimit: HTTPMiddleware requires a non-nil Limiter")
	}
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.cfg.Period.Seconds())))
	mopts := &middlewareOptions{
		denyHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mopts)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mopts.skip != nil && mopts.skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := limiter.Test(r.Context())
			if err != nil {
				limiter.opts.logger.Warn(r.Context(), "rate limiter unavailable",
					slog.String("key", limiter.cfg.Key), slog.Bool("fail_closed", mopts.failClosed), xlog.Err(err))
				if mopts.failClosed {
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				mopts.denyHandler.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
