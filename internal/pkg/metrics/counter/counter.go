// Package counter keeps process-independent callback tallies in Redis so
// every instance behind the load balancer reports the same numbers.
package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const callbackCountersKey = "callback:counters"

// Counter increments named fields of one Redis hash.
type Counter struct {
	client *redis.Client
	key    string
}

func New(client *redis.Client) *Counter {
	return &Counter{client: client, key: callbackCountersKey}
}

// Add increments the counter for name by one.
func (c *Counter) Add(ctx context.Context, name string) error {
	return c.client.HIncrBy(ctx, c.key, name, 1).Err()
}

// Snapshot returns all counters. Unparseable fields are skipped.
func (c *Counter) Snapshot(ctx context.Context) (map[string]int64, error) {
	data, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for name, raw := range data {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out[name] = v
	}
	return out, nil
}
