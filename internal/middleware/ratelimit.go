package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/n1hub/deepmine-engine/internal/logger"
)

const rateWindow = 60 * time.Second

// RateLimiter enforces fixed-window per-client request limits. With redis the
// window is shared across instances; without it (or when redis errors) an
// in-process fallback takes over, so limiting fails open rather than blocking
// traffic.
type RateLimiter struct {
	log    *logger.Logger
	client *redis.Client

	mu      sync.Mutex
	local   map[string][]time.Time
	lastGC  time.Time
	nowFunc func() time.Time
}

func NewRateLimiter(baseLog *logger.Logger, redisURL string) *RateLimiter {
	log := baseLog.With("component", "RateLimiter")
	var client *redis.Client
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Warn("Invalid redis URL, using in-process rate limiting", "error", err)
		} else {
			client = redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("Redis unreachable, using in-process rate limiting", "error", err)
				client = nil
			}
		}
	}
	return &RateLimiter{
		log:     log,
		client:  client,
		local:   make(map[string][]time.Time),
		lastGC:  time.Now(),
		nowFunc: time.Now,
	}
}

// Limit returns a gin middleware enforcing the given per-minute limit for the
// named route class.
func (rl *RateLimiter) Limit(name string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:%s:%s", name, clientID(c))
		if !rl.allow(c.Request.Context(), key, limit) {
			now := rl.nowFunc()
			retryAfter := int(rateWindow.Seconds()) - now.Second()
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(ctx context.Context, key string, limit int) bool {
	if rl.client != nil {
		allowed, err := rl.allowRedis(ctx, key, limit)
		if err == nil {
			return allowed
		}
		rl.log.Warn("Redis rate-limit check failed, using in-process window", "error", err)
	}
	return rl.allowLocal(key, limit)
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int) (bool, error) {
	now := rl.nowFunc()
	cutoff := now.Add(-rateWindow)
	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, rateWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return countCmd.Val() < int64(limit), nil
}

func (rl *RateLimiter) allowLocal(key string, limit int) bool {
	now := rl.nowFunc()
	cutoff := now.Add(-rateWindow)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > rateWindow {
		for k, stamps := range rl.local {
			kept := stamps[:0]
			for _, ts := range stamps {
				if ts.After(cutoff) {
					kept = append(kept, ts)
				}
			}
			if len(kept) == 0 {
				delete(rl.local, k)
			} else {
				rl.local[k] = kept
			}
		}
		rl.lastGC = now
	}

	kept := rl.local[key][:0]
	for _, ts := range rl.local[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= limit {
		rl.local[key] = kept
		return false
	}
	rl.local[key] = append(kept, now)
	return true
}

// Enabled reports whether a redis backend is attached.
func (rl *RateLimiter) Enabled() bool {
	return rl.client != nil
}

func (rl *RateLimiter) Ping(ctx context.Context) error {
	if rl.client == nil {
		return fmt.Errorf("redis not configured")
	}
	return rl.client.Ping(ctx).Err()
}

func clientID(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.ClientIP()
}
