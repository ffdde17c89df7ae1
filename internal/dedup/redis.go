package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lead:fingerprint:"

// RedisCache shares the fingerprint window between replicas. Redis key
// expiry provides the age bound; maxmemory-policy provides the size bound.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient accepts either a redis:// URL or a bare host:port.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	var opt *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Lookup(ctx context.Context, keys []string) (Entry, bool, error) {
	if len(keys) == 0 {
		return Entry{}, false, nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = keyPrefix + key
	}

	values, err := c.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup fingerprints: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		return entry, true, nil
	}
	return Entry{}, false, nil
}

func (c *RedisCache) Record(ctx context.Context, keys []string, entry Entry) error {
	if len(keys) == 0 {
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := c.client.TxPipeline()
	for _, key := range keys {
		pipe.Set(ctx, keyPrefix+key, payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record fingerprints: %w", err)
	}
	return nil
}
