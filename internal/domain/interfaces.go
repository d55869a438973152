package domain

import (
	"context"

	"slotbook/internal/models"
)

// Store is the storage contract the booking service is polymorphic over.
// Implemented by the SQLite store (internal/database) and the in-memory
// transactional double (internal/repository).
type Store interface {
	CreateSchedule(ctx context.Context, schedule *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error)

	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	CountConfirmedBySchedule(ctx context.Context, scheduleID string) (int, error)

	// UpdateScheduleTx runs fn inside the store's atomic commit unit for
	// one schedule id. At most one commit per schedule is in flight at a
	// time; commits on different schedules proceed independently. The Tx
	// presents the most recently committed schedule row, so fn re-checks
	// every precondition against current state immediately before
	// writing. If fn returns an error nothing is persisted. Acquiring
	// the critical section is bounded; ErrLockTimeout is returned when
	// the bound is hit.
	UpdateScheduleTx(ctx context.Context, scheduleID string, fn func(tx Tx) error) error
}

// Tx is the transactional view handed to UpdateScheduleTx closures. Reads
// observe committed state plus the writes staged so far in this unit.
type Tx interface {
	// Schedule returns the row the unit is keyed by, as of transaction
	// start. Nil when the schedule does not exist.
	Schedule() *models.Schedule

	// PutSchedule stages the updated schedule row.
	PutSchedule(schedule *models.Schedule) error

	// InsertBooking stages a new booking record.
	InsertBooking(booking *models.Booking) error

	// UpdateBookingStatus stages a status transition for one booking.
	UpdateBookingStatus(id, status string) error

	// FindActiveBooking returns the user's confirmed-or-pending booking
	// for the schedule, or nil.
	FindActiveBooking(userID, scheduleID string) (*models.Booking, error)

	// ActiveBookingsBySchedule returns every confirmed-or-pending
	// booking of the schedule.
	ActiveBookingsBySchedule(scheduleID string) ([]*models.Booking, error)
}

// EventPublisher notifies in-process consumers of committed state changes.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// AvailabilityCache is an optional read-side cache for availability
// lookups. A nil cache disables caching.
type AvailabilityCache interface {
	Get(ctx context.Context, scheduleID string) (*models.Availability, error)
	Set(ctx context.Context, availability *models.Availability) error
	Invalidate(ctx context.Context, scheduleID string) error
}
