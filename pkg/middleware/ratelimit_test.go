package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/atrium/pkg/storage/storagetest"
)

func TestLocalLimiter(t *testing.T) {
	l := NewLocalLimiter(RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute, BurstSize: 2}, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "a")
	assert.False(t, ok, "burst exhausted")

	ok, _ = l.Allow(ctx, "b")
	assert.True(t, ok, "keys are independent")
}

func TestRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewRedisLimiter(client, RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}, "test", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, mr.TTL(keys[0]) > 0)
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewLocalLimiter(RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour, BurstSize: 1}, 10)
	h := RateLimit(l, storagetest.QuietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1").Code)
	rec := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	l := NewRedisLimiter(client, RateLimitConfig{RequestsPerWindow: 1}, "", nil)
	h := RateLimit(l, storagetest.QuietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
