package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisAvailabilityCache is a read-through cache for availability lookups.
// Entries are short-lived and invalidated on every committed mutation of the
// schedule, so the cache can only serve slightly stale reads, never feed the
// reservation path: capacity decisions always happen inside the store
// commit.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration) *RedisAvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisAvailabilityCache{client: client, ttl: ttl}
}

func availabilityKey(scheduleID string) string {
	return fmt.Sprintf("availability:%s", scheduleID)
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, scheduleID string) (*models.Availability, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	val, err := c.client.Get(ctx, availabilityKey(scheduleID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get availability from redis: %w", err)
	}

	var availability models.Availability
	if err := json.Unmarshal([]byte(val), &availability); err != nil {
		return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
	}
	return &availability, nil
}

func (c *RedisAvailabilityCache) Set(ctx context.Context, availability *models.Availability) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	raw, err := json.Marshal(availability)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}

	if err := c.client.Set(ctx, availabilityKey(availability.ScheduleID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set availability in redis: %w", err)
	}
	return nil
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, scheduleID string) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	if err := c.client.Del(ctx, availabilityKey(scheduleID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate availability in redis: %w", err)
	}
	return nil
}
