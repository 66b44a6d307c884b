package security

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit wraps a handler with a fixed-window counter in Redis, keyed by
// the authenticated user when present and by client IP otherwise. When
// Redis is unreachable the request passes; availability beats strictness
// here.
func (r *RateLimiter) Limit(scope string, limit int64, window time.Duration, next func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.suspiciousUserAgent(e.Request.UserAgent()) {
			return e.JSON(403, map[string]string{"error": "Access denied"})
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, r.identity(e))
		ctx := e.Request.Context()

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "scope", scope, "error", err)
			return next(e)
		}
		if count == 1 {
			r.redis.Expire(ctx, key, window)
		}
		if count > limit {
			return e.JSON(429, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return next(e)
	}
}

func (r *RateLimiter) identity(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	host, _, err := net.SplitHostPort(e.Request.RemoteAddr)
	if err != nil {
		return "ip:" + e.Request.RemoteAddr
	}
	return "ip:" + host
}

func (r *RateLimiter) suspiciousUserAgent(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, marker := range []string{"bot", "crawler", "spider", "scraper", "curl/", "wget/"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
