package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReserveCommits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const capacity = 10
	const attempts = 20
	insertTestSchedule(t, db, "s1", capacity)

	var wg sync.WaitGroup
	wg.Add(attempts)
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", n)
			results <- db.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
				schedule := tx.Schedule()
				if schedule == nil {
					return domain.ErrScheduleNotFound
				}
				if schedule.BookedCount >= schedule.MaxCapacity {
					return domain.ErrCapacityExceeded
				}
				existing, err := tx.FindActiveBooking(userID, "s1")
				if err != nil {
					return err
				}
				if existing != nil {
					return domain.ErrDuplicateBooking
				}
				if err := tx.InsertBooking(&models.Booking{
					ID: fmt.Sprintf("b-%d", n), ScheduleID: "s1",
					CourseID: "course-1", CoachID: "coach-1",
					UserID: userID, UserName: "User", UserPhone: "1",
					Date: "2026-09-01", StartTime: "10:00", EndTime: "11:00",
					Status: models.StatusConfirmed,
				}); err != nil {
					return err
				}
				schedule.BookedCount++
				return tx.PutSchedule(schedule)
			})
		}(i)
	}

	wg.Wait()
	close(results)

	success, capacityFails := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrCapacityExceeded):
			capacityFails++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Exactly capacity seats are won; everyone else gets the typed failure.
	assert.Equal(t, capacity, success)
	assert.Equal(t, attempts-capacity, capacityFails)

	schedule, err := db.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, capacity, schedule.BookedCount)

	confirmed, err := db.CountConfirmedBySchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, capacity, confirmed)
}
