package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSchedule(t *testing.T, store *MemoryStore, id string, capacity int) *models.Schedule {
	t.Helper()
	schedule := &models.Schedule{
		ID: id, CourseID: "course-1", CoachID: "coach-1",
		Date: "2026-09-01", StartTime: "10:00", EndTime: "11:00",
		MaxCapacity: capacity, Status: models.ScheduleAvailable,
	}
	require.NoError(t, store.CreateSchedule(context.Background(), schedule))
	return schedule
}

func TestMemoryStoreCRUD(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedSchedule(t, store, "s1", 10)

	got, err := store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "course-1", got.CourseID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = store.GetSchedule(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	_, err = store.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	// Mutating the returned copy must not leak into the store.
	got.BookedCount = 99
	fresh, err := store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.BookedCount)
}

func TestMemoryStoreListSchedules(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSchedule(ctx, &models.Schedule{
		ID: "s1", CourseID: "yoga", CoachID: "a", Date: "2026-09-02", StartTime: "10:00", Status: models.ScheduleAvailable,
	}))
	require.NoError(t, store.CreateSchedule(ctx, &models.Schedule{
		ID: "s2", CourseID: "yoga", CoachID: "b", Date: "2026-09-01", StartTime: "09:00", Status: models.ScheduleCancelled,
	}))
	require.NoError(t, store.CreateSchedule(ctx, &models.Schedule{
		ID: "s3", CourseID: "pilates", CoachID: "a", Date: "2026-09-01", StartTime: "12:00", Status: models.ScheduleAvailable,
	}))

	all, err := store.ListSchedules(ctx, models.ScheduleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by date then start time.
	assert.Equal(t, "s2", all[0].ID)
	assert.Equal(t, "s3", all[1].ID)
	assert.Equal(t, "s1", all[2].ID)

	yoga, err := store.ListSchedules(ctx, models.ScheduleFilter{CourseID: "yoga"})
	require.NoError(t, err)
	assert.Len(t, yoga, 2)

	active, err := store.ListSchedules(ctx, models.ScheduleFilter{Status: models.ScheduleAvailable})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	coachA, err := store.ListSchedules(ctx, models.ScheduleFilter{CoachID: "a", Date: "2026-09-01"})
	require.NoError(t, err)
	require.Len(t, coachA, 1)
	assert.Equal(t, "s3", coachA[0].ID)
}

func TestUpdateScheduleTxRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedSchedule(t, store, "s1", 10)

	boom := errors.New("boom")
	err := store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
		schedule := tx.Schedule()
		schedule.BookedCount = 7
		require.NoError(t, tx.PutSchedule(schedule))
		require.NoError(t, tx.InsertBooking(&models.Booking{
			ID: "b1", ScheduleID: "s1", UserID: "u1", Status: models.StatusConfirmed,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)

	_, err = store.GetBooking(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)
}

func TestUpdateScheduleTxStagedReads(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedSchedule(t, store, "s1", 10)

	err := store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
		require.NoError(t, tx.InsertBooking(&models.Booking{
			ID: "b1", ScheduleID: "s1", UserID: "u1", Status: models.StatusConfirmed,
		}))

		// The staged insert is visible to reads of the same unit.
		found, err := tx.FindActiveBooking("u1", "s1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "b1", found.ID)

		active, err := tx.ActiveBookingsBySchedule("s1")
		require.NoError(t, err)
		assert.Len(t, active, 1)

		// And a staged cancellation hides it again.
		require.NoError(t, tx.UpdateBookingStatus("b1", models.StatusCancelled))
		found, err = tx.FindActiveBooking("u1", "s1")
		require.NoError(t, err)
		assert.Nil(t, found)
		return nil
	})
	require.NoError(t, err)

	booking, err := store.GetBooking(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, booking.Status)
}

func TestUpdateScheduleTxMissingSchedule(t *testing.T) {
	store := NewMemoryStore()

	err := store.UpdateScheduleTx(context.Background(), "missing", func(tx domain.Tx) error {
		assert.Nil(t, tx.Schedule())
		return domain.ErrScheduleNotFound
	})
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestUpdateScheduleTxLockTimeout(t *testing.T) {
	store := NewMemoryStore()
	store.SetLockTimeout(50 * time.Millisecond)
	ctx := context.Background()
	seedSchedule(t, store, "s1", 10)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	err := store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	close(release)
}

func TestUpdateScheduleTxContextCancelled(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedSchedule(t, store, "s1", 10)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
			close(holding)
			<-release
			return nil
		})
	}()

	<-holding
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()
	err := store.UpdateScheduleTx(cancelCtx, "s1", func(tx domain.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

// reserveTx is the reserve commit unit as the service issues it, reduced to
// what the store contract guarantees.
func reserveTx(userID, scheduleID string) func(tx domain.Tx) error {
	return func(tx domain.Tx) error {
		schedule := tx.Schedule()
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}
		if schedule.BookedCount >= schedule.MaxCapacity {
			return domain.ErrCapacityExceeded
		}
		existing, err := tx.FindActiveBooking(userID, scheduleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateBooking
		}
		if err := tx.InsertBooking(&models.Booking{
			ID: fmt.Sprintf("%s-%s", scheduleID, userID), ScheduleID: scheduleID,
			UserID: userID, Status: models.StatusConfirmed,
		}); err != nil {
			return err
		}
		schedule.BookedCount++
		return tx.PutSchedule(schedule)
	}
}

func TestConcurrentCommitsNoOverbooking(t *testing.T) {
	for _, tc := range []struct {
		name     string
		attempts int
		capacity int
	}{
		{"boundary", 11, 10},
		{"double", 20, 10},
		{"extreme", 100, 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			ctx := context.Background()
			scheduleID := "s-" + tc.name
			seedSchedule(t, store, scheduleID, tc.capacity)

			var wg sync.WaitGroup
			wg.Add(tc.attempts)
			results := make(chan error, tc.attempts)
			for i := 0; i < tc.attempts; i++ {
				go func(n int) {
					defer wg.Done()
					results <- store.UpdateScheduleTx(ctx, scheduleID,
						reserveTx(fmt.Sprintf("user-%d", n), scheduleID))
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
			assert.Equal(t, tc.capacity, success)
			assert.Equal(t, tc.attempts-tc.capacity, capacityFails)

			schedule, err := store.GetSchedule(ctx, scheduleID)
			require.NoError(t, err)
			assert.Equal(t, tc.capacity, schedule.BookedCount)

			confirmed, err := store.CountConfirmedBySchedule(ctx, scheduleID)
			require.NoError(t, err)
			assert.Equal(t, tc.capacity, confirmed)
		})
	}
}

func TestConcurrentSameUserSingleBooking(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedSchedule(t, store, "s1", 10)

	const attempts = 10
	var wg sync.WaitGroup
	wg.Add(attempts)
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func(n int) {
			defer wg.Done()
			// Same user every time; the booking id must stay unique.
			results <- store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
				schedule := tx.Schedule()
				if schedule.BookedCount >= schedule.MaxCapacity {
					return domain.ErrCapacityExceeded
				}
				existing, err := tx.FindActiveBooking("user-1", "s1")
				if err != nil {
					return err
				}
				if existing != nil {
					return domain.ErrDuplicateBooking
				}
				if err := tx.InsertBooking(&models.Booking{
					ID: fmt.Sprintf("b-%d", n), ScheduleID: "s1",
					UserID: "user-1", Status: models.StatusConfirmed,
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

	success, duplicates := 0, 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrDuplicateBooking):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)
	assert.Equal(t, attempts-1, duplicates)

	confirmed, err := store.CountConfirmedBySchedule(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
}

func TestListBookingsFilterAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedSchedule(t, store, "s1", 50)

	err := store.UpdateScheduleTx(ctx, "s1", func(tx domain.Tx) error {
		for i := 0; i < 7; i++ {
			status := models.StatusConfirmed
			if i%2 == 1 {
				status = models.StatusCancelled
			}
			if err := tx.InsertBooking(&models.Booking{
				ID: fmt.Sprintf("b-%d", i), ScheduleID: "s1",
				UserID: fmt.Sprintf("u-%d", i), Date: "2026-09-01", Status: status,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	confirmed, total, err := store.ListBookings(ctx, models.BookingFilter{
		ScheduleID: "s1", Status: models.StatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, confirmed, 4)

	paged, total, err := store.ListBookings(ctx, models.BookingFilter{
		ScheduleID: "s1", Page: 2, PageSize: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Len(t, paged, 3)

	empty, total, err := store.ListBookings(ctx, models.BookingFilter{
		ScheduleID: "s1", Page: 9, PageSize: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Empty(t, empty)
}
