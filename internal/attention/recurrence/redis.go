package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisIndex implements the index on Redis. SET NX PX is a single atomic
// check-and-mark, which is exactly the single-writer-per-source guarantee
// the recurring-suppress evaluator needs across engine instances.
//
// The entry's TTL is fixed by the first observation's window; a later policy
// edit shortening the window takes effect once the existing entry expires.
type RedisIndex struct {
	client redis.UniversalClient
}

// NewRedis constructs a Redis-backed recurrence index.
func NewRedis(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{client: client}
}

func (i *RedisIndex) CheckAndMark(ctx context.Context, key string, window time.Duration) (bool, error) {
	set, err := i.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), window).Result()
	if err != nil {
		return false, fmt.Errorf("recurrence check: %w", err)
	}
	// SetNX succeeded: we are the first observer inside the window.
	return !set, nil
}
