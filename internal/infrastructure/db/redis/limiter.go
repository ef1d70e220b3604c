package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abneribeiro/apits/internal/infrastructure/ratelimit"
)

// Key format: ratelimit:<key>
const limiterPrefix = "ratelimit:"

// windowScript increments the window counter, starting the window on the
// first hit. Returns {count, remaining window in ms}.
var windowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// FixedWindow is a rate limiter shared by every API instance on the same Redis.
type FixedWindow struct {
	client *redis.Client
	max    int
	window time.Duration
}

func NewFixedWindow(client *redis.Client, max int, window time.Duration) *FixedWindow {
	return &FixedWindow{client: client, max: max, window: window}
}

func (f *FixedWindow) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	vals, err := windowScript.Run(ctx, f.client, []string{limiterPrefix + key}, f.window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(vals) != 2 {
		return ratelimit.Decision{}, fmt.Errorf("rate limit check: unexpected reply %v", vals)
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	d := ratelimit.Decision{Limit: f.max, Allowed: count <= f.max}
	if rem := f.max - count; rem > 0 {
		d.Remaining = rem
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
