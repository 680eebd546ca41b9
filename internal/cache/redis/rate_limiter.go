package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// waitPollInterval is how often Wait retries a denied request.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter using a sliding-window approach
// backed by Redis sorted sets and an atomic Lua script.
type RateLimiter struct {
	rdb           *redis.Client
	keys          keyspace
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:           c.Underlying(),
		keys:          c.keys,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func (rl *RateLimiter) rateLimitKey(key string) string {
	return rl.keys.key("ratelimit", key)
}

// Allow checks whether an event for key fits within limit events per
// window. An allowed event is counted; a denied one is not.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now().UnixMicro()
	windowMicro := window.Microseconds()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.rdb,
		[]string{rl.rateLimitKey(key)},
		now,
		windowMicro,
		limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until an event for key is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		default:
		}

		allowed, err := rl.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		// Sleep before retrying, but honour the context.
		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Record adds one event for key to the window without any limit check.
func (rl *RateLimiter) Record(ctx context.Context, key string, window time.Duration) error {
	now := time.Now()
	k := rl.rateLimitKey(key)
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%d", now.Add(-window).UnixMicro()))
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		pipe.PExpire(ctx, k, window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: rate limit record %s: %w", key, err)
	}
	return nil
}

// Count returns the events for key inside the window. It never writes.
func (rl *RateLimiter) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	from := time.Now().Add(-window).UnixMicro()
	n, err := rl.rdb.ZCount(ctx, rl.rateLimitKey(key), fmt.Sprintf("(%d", from), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis: rate limit count %s: %w", key, err)
	}
	return int(n), nil
}

// Compile-time interface checks.
var (
	_ domain.RateLimiter  = (*RateLimiter)(nil)
	_ domain.EventCounter = (*RateLimiter)(nil)
)
