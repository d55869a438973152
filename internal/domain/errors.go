package domain

import "errors"

// Typed failures returned by the booking service and its stores. Every
// violated precondition aborts the whole atomic unit; callers match with
// errors.Is and decide what to do next. Nothing is retried internally.
var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBookingNotFound  = errors.New("booking not found")

	// ErrScheduleCancelled is returned when an operation targets a
	// schedule that has reached its terminal state.
	ErrScheduleCancelled = errors.New("schedule is cancelled")

	// ErrBookingCancelled signals a cancel of an already-cancelled
	// booking. It is reported, never silently absorbed.
	ErrBookingCancelled = errors.New("booking is already cancelled")

	// ErrCapacityExceeded means the commit-time re-check found no seat
	// left. A concurrent attempt on the same schedule won the last one.
	ErrCapacityExceeded = errors.New("schedule capacity exceeded")

	// ErrDuplicateBooking means the user already holds an active booking
	// for this schedule.
	ErrDuplicateBooking = errors.New("user already booked this schedule")

	ErrPermissionDenied = errors.New("permission denied")

	// ErrCancelWindowClosed means the non-admin cancellation lead time
	// has passed.
	ErrCancelWindowClosed = errors.New("cancellation window closed")

	// ErrInvalidScheduleTime reports a malformed date/start-time pair on
	// the schedule record during the cancellation window check.
	ErrInvalidScheduleTime = errors.New("invalid schedule date or time")

	// ErrInvalidInput covers missing or out-of-range request fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLockTimeout means the per-schedule critical section could not be
	// acquired within the bounded wait.
	ErrLockTimeout = errors.New("schedule lock acquire timed out")
)
