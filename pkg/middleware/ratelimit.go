package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/platinummonkey/atrium/pkg/httputil"
	"github.com/platinummonkey/atrium/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 600,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// TokenRateLimitConfig is the tighter limit for routes that take an invite token
func TokenRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 30,
		WindowDuration:    time.Minute,
		BurstSize:         5,
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	d := DefaultRateLimitConfig()
	if c.RequestsPerWindow <= 0 {
		c.RequestsPerWindow = d.RequestsPerWindow
	}
	if c.WindowDuration <= 0 {
		c.WindowDuration = d.WindowDuration
	}
	if c.BurstSize <= 0 {
		c.BurstSize = 1
	}
	return c
}

// Limiter decides whether one more request under key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Config() RateLimitConfig
}

// LocalLimiter is an in-process token bucket per key. Idle keys are evicted.
type LocalLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets *lru.LRU[string, *rate.Limiter]
}

// NewLocalLimiter creates an in-process limiter tracking at most maxKeys keys
func NewLocalLimiter(config RateLimitConfig, maxKeys int) *LocalLimiter {
	config = config.withDefaults()
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	return &LocalLimiter{
		config:  config,
		buckets: lru.NewLRU[string, *rate.Limiter](maxKeys, nil, 2*config.WindowDuration),
	}
}

// Allow takes one token from key's bucket
func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		every := l.config.WindowDuration / time.Duration(l.config.RequestsPerWindow)
		b = rate.NewLimiter(rate.Every(every), l.config.BurstSize)
		l.buckets.Add(key, b)
	}
	l.mu.Unlock()
	return b.Allow(), nil
}

func (l *LocalLimiter) Config() RateLimitConfig { return l.config }

// RedisLimiter counts requests per fixed window in Redis so replicas share one limit
type RedisLimiter struct {
	redis   *redis.Client
	config  RateLimitConfig
	prefix  string
	metrics *observability.Metrics
}

// NewRedisLimiter creates a Redis-backed limiter
func NewRedisLimiter(client *redis.Client, config RateLimitConfig, prefix string, metrics *observability.Metrics) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{redis: client, config: config.withDefaults(), prefix: prefix, metrics: metrics}
}

// Allow increments key's counter for the current window
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().UnixNano() / int64(l.config.WindowDuration)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, window)

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.config.WindowDuration)
	_, err := pipe.Exec(ctx)
	l.metrics.RecordRedisCommand("incr", err)
	if err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}
	return incr.Val() <= int64(l.config.RequestsPerWindow), nil
}

func (l *RedisLimiter) Config() RateLimitConfig { return l.config }

// RateLimit throttles requests per authenticated user, or per client IP when anonymous.
// Limiter errors let the request through.
func RateLimit(limiter Limiter, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := "ip:" + clientIP(r)
			if user := UserFromContext(ctx); user != nil {
				key = "user:" + user.ID
			}

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				observability.FromContext(ctx, logger).WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			cfg := limiter.Config()
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", cfg.WindowDuration.Seconds()))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then the connection address
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
