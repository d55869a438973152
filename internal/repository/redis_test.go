package repository

import (
	"context"
	"testing"
	"time"

	"slotbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisAvailabilityCache(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	cache := NewRedisAvailabilityCache(client, time.Minute)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		availability := &models.Availability{
			ScheduleID:     "s1",
			BookedCount:    3,
			MaxCapacity:    10,
			AvailableSeats: 7,
			Status:         models.ScheduleAvailable,
		}
		require.NoError(t, cache.Set(ctx, availability))

		got, err := cache.Get(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, availability, got)
	})

	t.Run("GetMiss", func(t *testing.T) {
		got, err := cache.Get(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Invalidate", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, &models.Availability{ScheduleID: "s2", MaxCapacity: 5, AvailableSeats: 5}))
		require.NoError(t, cache.Invalidate(ctx, "s2"))

		got, err := cache.Get(ctx, "s2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, &models.Availability{ScheduleID: "s3", MaxCapacity: 5, AvailableSeats: 5}))

		s.FastForward(2 * time.Minute)

		got, err := cache.Get(ctx, "s3")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptEntry", func(t *testing.T) {
		require.NoError(t, s.Set("availability:bad", "{not json"))

		_, err := cache.Get(ctx, "bad")
		assert.Error(t, err)
	})
}
