package cashier

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupConfig configures webhook event deduplication.
type RedisDedupConfig struct {
	ConnectionURL string        `env:"CASHIER_REDIS_URL,required"`
	TTL           time.Duration `env:"CASHIER_DEDUP_TTL" envDefault:"72h"`
	KeyPrefix     string        `env:"CASHIER_DEDUP_PREFIX" envDefault:"cashier:event:"`
}

// RedisDeduper records processed webhook event IDs in Redis. The TTL only
// needs to outlive the processor's retry window; transitions stay idempotent
// regardless, so an expired key costs a redundant lookup, not correctness.
type RedisDeduper struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisDeduper creates a deduper from an established Redis client.
func NewRedisDeduper(client *redis.Client, cfg RedisDedupConfig) *RedisDeduper {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 72 * time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cashier:event:"
	}
	return &RedisDeduper{
		client:    client,
		ttl:       ttl,
		keyPrefix: prefix,
	}
}

// ConnectRedisDeduper dials Redis from the config and returns a ready
// deduper.
func ConnectRedisDeduper(ctx context.Context, cfg RedisDedupConfig) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisDeduper(client, cfg), nil
}

// Seen atomically marks the event as processed and reports whether it had
// already been recorded.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	stored, err := d.client.SetNX(ctx, d.keyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !stored, nil
}
