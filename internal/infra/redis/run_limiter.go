package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const runLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return 0
end
return 1
`

// RunLimiter is a fixed-window counter shared by every instance serving an attempt.
type RunLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	script *redis.Script
}

func NewRunLimiter(client *redis.Client, limit int, window time.Duration) *RunLimiter {
	return &RunLimiter{
		client: client,
		limit:  limit,
		window: window,
		script: redis.NewScript(runLimitScript),
	}
}

func (l *RunLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true, nil
	}
	ttl := l.window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	allowed, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, ttl, l.limit).Int64()
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}
