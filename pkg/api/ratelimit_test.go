package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoPerMinute = RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

func TestMemoryRateLimiter(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	rl := NewMemoryRateLimiter(twoPerMinute, 16, clock)

	d, err := rl.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = rl.Allow(ctx, "actor:1")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = rl.Allow(ctx, "actor:1")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.Reset)

	d, _ = rl.Allow(ctx, "actor:2")
	assert.True(t, d.Allowed, "keys are counted separately")

	clock.Advance(time.Minute)
	d, _ = rl.Allow(ctx, "actor:1")
	assert.True(t, d.Allowed, "a new window starts after the old one ends")
	assert.Equal(t, 1, d.Remaining)
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rl := NewRedisRateLimiter(client, twoPerMinute, "test:")

	for i := 0; i < 2; i++ {
		d, err := rl.Allow(ctx, "actor:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := rl.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, mr.Exists("test:actor:1"))
	assert.Equal(t, time.Minute, mr.TTL("test:actor:1"))

	mr.FastForward(time.Minute)
	d, err = rl.Allow(ctx, "actor:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.Close()
	_, err = rl.Allow(ctx, "actor:1")
	assert.ErrorContains(t, err, "redis error")
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimitMiddleware(t *testing.T) {
	log, hook := test.NewNullLogger()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	request := func(actor *rbac.Actor) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/invoices", nil)
		if actor != nil {
			r = r.WithContext(rbac.WithActor(r.Context(), *actor))
		}
		return r
	}

	t.Run("throttles per actor", func(t *testing.T) {
		h := RateLimitMiddleware(NewMemoryRateLimiter(twoPerMinute, 16, clockwork.NewFakeClock()), log)(ok)
		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, request(&operator))
			assert.Equal(t, http.StatusNoContent, w.Code)
		}

		w := httptest.NewRecorder()
		h.ServeHTTP(w, request(&operator))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, codeRateLimited, decode(t, w)["code"])

		w = httptest.NewRecorder()
		h.ServeHTTP(w, request(&admin))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("fails open", func(t *testing.T) {
		w := httptest.NewRecorder()
		RateLimitMiddleware(failingLimiter{}, log)(ok).ServeHTTP(w, request(&member))
		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, "rate limiter unavailable", hook.LastEntry().Message)
	})

	t.Run("nil limiter", func(t *testing.T) {
		w := httptest.NewRecorder()
		RateLimitMiddleware(nil, log)(ok).ServeHTTP(w, request(&member))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
