package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a fixed-window counter kept in Redis
type RateLimiter struct {
	rdb    redis.Cmdable
	scope  string
	limit  int64
	window time.Duration
}

// NewRateLimiter allows limit hits per window for each key within scope
func NewRateLimiter(rdb redis.Cmdable, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  int64(limit),
		window: window,
	}
}

// Allow records a hit for key. When the limit is exceeded it reports how long
// until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := fmt.Sprintf("rate_limit:%s:%s", l.scope, key)

	// EXPIRE NX also repairs a counter left without a TTL
	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("failed to count hit: %w", err)
	}
	count := incr.Val()
	if count <= l.limit {
		return true, 0, nil
	}

	ttl, err := l.rdb.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// PerUser limits authenticated requests by user id. Redis failures let the request through.
func (l *RateLimiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := GetUserID(r.Context())
		allowed, retryAfter, err := l.Allow(r.Context(), strconv.FormatInt(userID, 10))
		if err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Str("scope", l.scope).Msg("Rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			respondError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
