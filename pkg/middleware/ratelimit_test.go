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

	"github.com/platinummonkey/cids/pkg/claims"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 3,
		WindowDuration:    time.Minute,
		BurstSize:         0,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("subject:u-100"), "request %d should be allowed", i)
	}
	assert.False(t, rl.Allow("subject:u-100"))

	// Other keys have independent buckets
	assert.True(t, rl.Allow("subject:u-200"))
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    100 * time.Millisecond,
		BurstSize:         0,
	})

	for i := 0; i < 100; i++ {
		rl.Allow("ip:10.0.0.1")
	}
	assert.False(t, rl.Allow("ip:10.0.0.1"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, rl.Allow("ip:10.0.0.1"))
}

func TestRateLimiter_Remaining(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    time.Minute,
		BurstSize:         2,
	})

	assert.Equal(t, 7, rl.Remaining("subject:u-100"))
	rl.Allow("subject:u-100")
	assert.Equal(t, 6, rl.Remaining("subject:u-100"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    10 * time.Millisecond,
		BurstSize:         0,
	})

	rl.Allow("subject:u-100")
	time.Sleep(30 * time.Millisecond)
	rl.Cleanup()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddleware_Headers(t *testing.T) {
	m := NewRateLimitMiddleware()
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/apps", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitMiddleware_Exceeded(t *testing.T) {
	m := &RateLimitMiddleware{
		subjectLimiter: NewRateLimiter(PerSubjectRateLimitConfig()),
		anonymousLimiter: NewRateLimiter(&RateLimitConfig{
			RequestsPerWindow: 1,
			WindowDuration:    time.Minute,
			BurstSize:         0,
		}),
	}
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/apps", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimitMiddleware_SubjectKey(t *testing.T) {
	m := &RateLimitMiddleware{
		subjectLimiter: NewRateLimiter(&RateLimitConfig{
			RequestsPerWindow: 1,
			WindowDuration:    time.Minute,
			BurstSize:         0,
		}),
		anonymousLimiter: NewRateLimiter(DefaultRateLimitConfig()),
	}

	mw := NewAuthMiddleware(&fakeValidator{claims: map[string]interface{}{
		claims.ClaimSubject: "u-100",
	}}, false)
	handler := mw.Handler(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/apps", nil)
	req.Header.Set("Authorization", "Bearer good-token")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "X-Forwarded-For",
			headers:  map[string]string{"X-Forwarded-For": "203.0.113.4"},
			expected: "203.0.113.4",
		},
		{
			name:     "X-Real-IP",
			headers:  map[string]string{"X-Real-IP": "203.0.113.5"},
			expected: "203.0.113.5",
		},
		{
			name:     "remote addr fallback",
			headers:  nil,
			expected: "192.0.2.1:1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}

func newRedisLimiterClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	client := newRedisLimiterClient(t)
	rl := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
	}, "")

	ctx := context.Background()

	allowed, err := rl.Allow(ctx, "subject:u-100")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rl.Allow(ctx, "subject:u-100")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = rl.Allow(ctx, "subject:u-100")
	require.NoError(t, err)
	assert.False(t, allowed)

	remaining, err := rl.Remaining(ctx, "subject:u-100")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, rl.Reset(ctx, "subject:u-100"))

	allowed, err = rl.Allow(ctx, "subject:u-100")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimiter_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	rl := NewDistributedRateLimiter(client, nil, "")

	allowed, err := rl.Allow(context.Background(), "subject:u-100")
	assert.Error(t, err)
	assert.True(t, allowed)
}

func TestDistributedRateLimitMiddleware(t *testing.T) {
	client := newRedisLimiterClient(t)
	m := NewDistributedRateLimitMiddleware(client)
	m.anonymousLimiter = NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Minute,
	}, "cids:ratelimit:anon")

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/apps", nil)
	req.Header.Set("X-Real-IP", "10.0.0.9")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestDistributedRateLimitMiddleware_HealthCheck(t *testing.T) {
	client := newRedisLimiterClient(t)
	m := NewDistributedRateLimitMiddleware(client)

	assert.NoError(t, m.HealthCheck(context.Background()))
}
