package server

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// ErrRateLimited .
var ErrRateLimited = errors.New(429, "RATE_LIMIT", "rate limit exceeded")

// 基础令牌桶
type tokenBucket struct {
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(rps float64, now time.Time) *tokenBucket {
	if rps <= 0 {
		rps = 1
	}
	return &tokenBucket{
		rate:       rps,
		capacity:   rps * 2,
		tokens:     rps * 2,
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	delta := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+delta*b.rate)
	b.lastRefill = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// clientLimiter 按客户端地址分桶，空闲超过 idle 的桶在下次访问时回收。
type clientLimiter struct {
	mu      sync.Mutex
	rps     float64
	idle    time.Duration
	buckets map[string]*tokenBucket
	swept   time.Time
	now     func() time.Time
}

func newClientLimiter(rps float64) *clientLimiter {
	return &clientLimiter{
		rps:     rps,
		idle:    10 * time.Minute,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.swept) > l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastRefill) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.swept = now
	}
	b, ok := l.buckets[client]
	if !ok {
		b = newTokenBucket(l.rps, now)
		l.buckets[client] = b
	}
	return b.allow(now)
}

// limiterMiddleware 将限流应用到 HTTP 请求
func limiterMiddleware(l *clientLimiter) middleware.Middleware {
	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req any) (reply any, err error) {
			if !l.allow(clientKey(ctx)) {
				return nil, ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}

func clientKey(ctx context.Context) string {
	r, ok := http.RequestFromServerContext(ctx)
	if !ok {
		return ""
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
