package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript refuses once the counter has reached the limit, otherwise counts
// the hit. The key expires with the window, which starts the next one.
var takeScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return {0, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, current}
`)

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "rl:"}
}

// Take ignores now; Redis key expiry is the clock.
func (s *RedisStore) Take(ctx context.Context, key string, limit int, window time.Duration, _ time.Time) (bool, int, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("take rate limit %q: %w", key, err)
	}
	if len(res) < 2 {
		return false, 0, fmt.Errorf("take rate limit %q: unexpected script reply %v", key, res)
	}
	return res[0] == 1, int(res[1]), nil
}
