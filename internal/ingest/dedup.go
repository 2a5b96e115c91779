package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers message keys that were already persisted so a
// redelivery can be acknowledged without touching the store. The store
// upsert stays the correctness guarantee; a Deduper only saves work.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// NopDeduper never reports a key as seen
type NopDeduper struct{}

// Seen always returns false
func (NopDeduper) Seen(context.Context, string) (bool, error) { return false, nil }

// Remember does nothing
func (NopDeduper) Remember(context.Context, string) error { return nil }

// RedisDeduper keeps one expiring marker key per processed message
type RedisDeduper struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// DefaultDedupTTL is how long a processed message is remembered
const DefaultDedupTTL = 24 * time.Hour

// NewRedisDeduper creates a RedisDeduper. A non-positive ttl selects
// DefaultDedupTTL.
func NewRedisDeduper(client redis.Cmdable, prefix string, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	if prefix == "" {
		prefix = "queue-service:ingested:"
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) markerKey(key string) string {
	return d.prefix + key
}

// Seen reports whether key was remembered and has not expired
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.markerKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember stores the marker for key with the configured TTL
func (d *RedisDeduper) Remember(ctx context.Context, key string) error {
	return d.client.Set(ctx, d.markerKey(key), 1, d.ttl).Err()
}
