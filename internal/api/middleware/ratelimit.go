package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatmind/backend/internal/logger"
	"chatmind/backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// IPRateLimiter is a sliding-window per-IP limiter backed by Redis sorted
// sets. It guards the unauthenticated auth endpoints against credential
// stuffing and OTP farming.
type IPRateLimiter struct {
	rdb      *redis.Client
	log      *logger.Logger
	requests int
	window   time.Duration
}

// NewIPRateLimiter Constructor
func NewIPRateLimiter(rdb *redis.Client, log *logger.Logger, requests int, window time.Duration) *IPRateLimiter {
	if requests <= 0 {
		requests = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &IPRateLimiter{rdb: rdb, log: log, requests: requests, window: window}
}

// RealIP extracts the client IP, trusting the usual proxy headers first.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// checkAndIncrement records the request and reports whether it fits the
// window. Returns (allowed, remaining, resetAt).
func (rl *IPRateLimiter) checkAndIncrement(ctx context.Context, key string) (bool, int, time.Time) {
	now := time.Now()
	windowStart := now.Add(-rl.window)

	pipe := rl.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixMilli()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, rl.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis trouble must not lock users out of login.
		rl.log.Warn("rate limiter redis error", "error", err)
		return true, rl.requests, now.Add(rl.window)
	}

	count := countCmd.Val()
	remaining := rl.requests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < int64(rl.requests), remaining, now.Add(rl.window)
}

// Middleware enforces the limit and sets the X-RateLimit-* headers.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := RealIP(c.Request)
		key := "ratelimit:ip:" + ip

		allowed, remaining, resetAt := rl.checkAndIncrement(c.Request.Context(), key)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			path := c.FullPath()
			if path == "" {
				path = c.Request.URL.Path
			}
			metrics.RateLimitHits.WithLabelValues(path).Inc()
			rl.log.Warn("rate limit exceeded", "ip", ip, "endpoint", path)

			c.Header("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
