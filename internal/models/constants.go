package models

// Schedule statuses.
const (
	ScheduleAvailable = "available"
	ScheduleFull      = "full"
	ScheduleCancelled = "cancelled"
)

// Booking statuses. StatusPending survives from the source data model: old
// records may carry it and every "active booking" filter must include it,
// but no operation produces it anymore.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusPending   = "pending"
)

// ActiveBookingStatuses are the statuses counted against capacity.
var ActiveBookingStatuses = []string{StatusConfirmed, StatusPending}

// IsActiveBookingStatus reports whether a booking in this status holds a seat.
func IsActiveBookingStatus(status string) bool {
	return status == StatusConfirmed || status == StatusPending
}

const (
	// DefaultMaxCapacity is applied when an admin creates a schedule
	// without an explicit capacity.
	DefaultMaxCapacity = 20

	// DefaultCancelWindowHours is the minimum lead time before the slot
	// start at which a non-admin cancellation is still permitted.
	DefaultCancelWindowHours = 2

	// DefaultPageSize and MaxPageSize bound booking listings.
	DefaultPageSize = 20
	MaxPageSize     = 100
)
