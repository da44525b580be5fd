package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/krama-desa/iuran/pkg/httputil"
	"github.com/krama-desa/iuran/pkg/rbac"
	"github.com/sirupsen/logrus"
)

const codeRateLimited = "rate_limited"

// RateLimitConfig caps requests per actor in a fixed window
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

// RateLimiter counts requests per key
type RateLimiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func (c RateLimitConfig) decide(count int64, reset time.Duration) Decision {
	remaining := c.RequestsPerWindow - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(c.RequestsPerWindow),
		Limit:     c.RequestsPerWindow,
		Remaining: remaining,
		Reset:     reset,
	}
}

// RedisRateLimiter shares the window counters between API instances
type RedisRateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	prefix string
}

// NewRedisRateLimiter creates a redis-backed limiter; keys are prefix+key
func NewRedisRateLimiter(client *redis.Client, config RateLimitConfig, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisRateLimiter{client: client, config: config, prefix: prefix}
}

// Allow increments the window counter of key
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.prefix + key

	pipe := rl.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}

	reset := ttl.Val()
	if reset < 0 {
		// first hit in the window
		if err := rl.client.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis error: %w", err)
		}
		reset = rl.config.WindowDuration
	}
	return rl.config.decide(incr.Val(), reset), nil
}

type window struct {
	count   int64
	expires time.Time
}

// MemoryRateLimiter keeps window counters in process. Idle keys fall out of
// a bounded LRU after one window.
type MemoryRateLimiter struct {
	config RateLimitConfig
	clock  clockwork.Clock

	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
}

// NewMemoryRateLimiter creates an in-process limiter tracking up to size keys
func NewMemoryRateLimiter(config RateLimitConfig, size int, clock clockwork.Clock) *MemoryRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryRateLimiter{
		config:  config,
		clock:   clock,
		windows: expirable.NewLRU[string, *window](size, nil, config.WindowDuration),
	}
}

// Allow increments the window counter of key
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	w, ok := rl.windows.Get(key)
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(rl.config.WindowDuration)}
		rl.windows.Add(key, w)
	}
	w.count++
	return rl.config.decide(w.count, w.expires.Sub(now)), nil
}

// RateLimitMiddleware throttles each actor. It runs after ActorMiddleware;
// limiter errors let the request through.
func RateLimitMiddleware(limiter RateLimiter, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := rbac.ActorFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			d, err := limiter.Allow(r.Context(), "actor:"+strconv.FormatInt(actor.UserID, 10))
			if err != nil {
				httputil.Logger(r.Context(), log).WithError(err).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				retryAfter := int(d.Reset.Round(time.Second) / time.Second)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteErrorResponse(w, http.StatusTooManyRequests, httputil.ErrorResponse{
					Error: "rate limit exceeded",
					Code:  codeRateLimited,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
