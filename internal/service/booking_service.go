package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/metrics"
	"slotbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService orchestrates atomic reserve/cancel operations against the
// store. Every mutation of a schedule's counter and of its bookings happens
// inside a single store commit keyed by the schedule id; preconditions are
// re-checked inside that commit, never only before it. The service never
// retries a failed attempt; callers decide.
type BookingService struct {
	store        domain.Store
	cache        domain.AvailabilityCache
	eventBus     domain.EventPublisher
	cancelWindow time.Duration
	defaultCap   int
	logger       *zerolog.Logger
}

func NewBookingService(store domain.Store, cache domain.AvailabilityCache, eventBus domain.EventPublisher, cancelWindowHours, defaultCapacity int, logger *zerolog.Logger) *BookingService {
	if cancelWindowHours < 0 {
		cancelWindowHours = models.DefaultCancelWindowHours
	}
	if defaultCapacity <= 0 {
		defaultCapacity = models.DefaultMaxCapacity
	}
	return &BookingService{
		store:        store,
		cache:        cache,
		eventBus:     eventBus,
		cancelWindow: time.Duration(cancelWindowHours) * time.Hour,
		defaultCap:   defaultCapacity,
		logger:       logger,
	}
}

// ReserveRequest carries the caller-supplied fields of a reservation.
type ReserveRequest struct {
	ScheduleID string
	UserID     string
	UserName   string
	UserPhone  string
	Remark     string
}

// Reserve books one seat. The capacity check, the duplicate check, the
// booking insert and the counter increment are one atomic unit; when a
// concurrent attempt commits the last seat first, this one fails with
// ErrCapacityExceeded.
func (s *BookingService) Reserve(ctx context.Context, req ReserveRequest) (*models.Booking, error) {
	if req.ScheduleID == "" || req.UserID == "" || req.UserName == "" || req.UserPhone == "" {
		return nil, fmt.Errorf("%w: schedule_id, user_id, user_name and user_phone are required", domain.ErrInvalidInput)
	}

	var booking *models.Booking
	start := time.Now()
	err := s.store.UpdateScheduleTx(ctx, req.ScheduleID, func(tx domain.Tx) error {
		schedule := tx.Schedule()
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}
		if schedule.Status == models.ScheduleCancelled {
			return domain.ErrScheduleCancelled
		}
		if schedule.Status == models.ScheduleFull || schedule.BookedCount >= schedule.MaxCapacity {
			return domain.ErrCapacityExceeded
		}

		existing, err := tx.FindActiveBooking(req.UserID, req.ScheduleID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateBooking
		}

		booking = &models.Booking{
			ID:         uuid.NewString(),
			ScheduleID: schedule.ID,
			CourseID:   schedule.CourseID,
			CoachID:    schedule.CoachID,
			UserID:     req.UserID,
			UserName:   req.UserName,
			UserPhone:  req.UserPhone,
			Date:       schedule.Date,
			StartTime:  schedule.StartTime,
			EndTime:    schedule.EndTime,
			Status:     models.StatusConfirmed,
			Remark:     req.Remark,
		}
		if err := tx.InsertBooking(booking); err != nil {
			return err
		}

		schedule.BookedCount++
		if schedule.BookedCount >= schedule.MaxCapacity {
			schedule.Status = models.ScheduleFull
		} else {
			schedule.Status = models.ScheduleAvailable
		}
		return tx.PutSchedule(schedule)
	})
	metrics.ObserveCommit(time.Since(start).Seconds())

	if err != nil {
		metrics.IncReserve(reserveOutcome(err))
		return nil, err
	}
	metrics.IncReserve("success")

	s.invalidateAvailability(ctx, req.ScheduleID)
	s.publishBookingEvent(events.EventBookingCreated, booking, false)
	return booking, nil
}

// Cancel marks a booking cancelled and releases its seat. Owners are bound
// by the cancellation window; admins are not. Cancelling an already
// cancelled booking is reported, not absorbed.
func (s *BookingService) Cancel(ctx context.Context, bookingID, userID string, asAdmin bool) error {
	if bookingID == "" {
		return fmt.Errorf("%w: booking_id is required", domain.ErrInvalidInput)
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}

	if !asAdmin && booking.UserID != userID {
		return domain.ErrPermissionDenied
	}
	if booking.Status == models.StatusCancelled {
		return domain.ErrBookingCancelled
	}

	if !asAdmin {
		startsAt, err := composeStart(booking.Date, booking.StartTime)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidScheduleTime, err)
		}
		if time.Until(startsAt) < s.cancelWindow {
			return domain.ErrCancelWindowClosed
		}
	}

	err = s.store.UpdateScheduleTx(ctx, booking.ScheduleID, func(tx domain.Tx) error {
		// Re-check under the lock: a concurrent cancel or cascade may
		// have transitioned the booking already.
		current, err := tx.FindActiveBooking(booking.UserID, booking.ScheduleID)
		if err != nil {
			return err
		}
		if current == nil || current.ID != booking.ID {
			return domain.ErrBookingCancelled
		}

		if err := tx.UpdateBookingStatus(booking.ID, models.StatusCancelled); err != nil {
			return err
		}

		schedule := tx.Schedule()
		if schedule == nil {
			// Orphaned booking: cancel it anyway, there is no
			// counter left to release.
			s.logger.Warn().Str("booking_id", booking.ID).Str("schedule_id", booking.ScheduleID).
				Msg("cancel: schedule row missing, skipping counter release")
			return nil
		}
		if schedule.Status == models.ScheduleCancelled {
			// Terminal; the counter is frozen.
			return nil
		}

		schedule.BookedCount--
		if schedule.BookedCount < 0 {
			schedule.BookedCount = 0
		}
		if schedule.BookedCount >= schedule.MaxCapacity {
			schedule.Status = models.ScheduleFull
		} else {
			schedule.Status = models.ScheduleAvailable
		}
		return tx.PutSchedule(schedule)
	})
	if err != nil {
		return err
	}

	actor := "owner"
	if asAdmin {
		actor = "admin"
	}
	metrics.IncCancellation(actor)

	s.invalidateAvailability(ctx, booking.ScheduleID)
	booking.Status = models.StatusCancelled
	s.publishBookingEvent(events.EventBookingCancelled, booking, asAdmin)
	return nil
}

// CancelSchedule marks the schedule cancelled (terminal) and cancels every
// active booking in the same commit. The booked counter is left as it was;
// it carries no meaning for a cancelled schedule.
func (s *BookingService) CancelSchedule(ctx context.Context, scheduleID string, asAdmin bool) error {
	if !asAdmin {
		return domain.ErrPermissionDenied
	}
	if scheduleID == "" {
		return fmt.Errorf("%w: schedule_id is required", domain.ErrInvalidInput)
	}

	var cancelled int
	var courseID string
	err := s.store.UpdateScheduleTx(ctx, scheduleID, func(tx domain.Tx) error {
		schedule := tx.Schedule()
		if schedule == nil {
			return domain.ErrScheduleNotFound
		}
		if schedule.Status == models.ScheduleCancelled {
			return domain.ErrScheduleCancelled
		}
		courseID = schedule.CourseID

		active, err := tx.ActiveBookingsBySchedule(scheduleID)
		if err != nil {
			return err
		}
		for _, booking := range active {
			if err := tx.UpdateBookingStatus(booking.ID, models.StatusCancelled); err != nil {
				return err
			}
		}
		cancelled = len(active)

		schedule.Status = models.ScheduleCancelled
		return tx.PutSchedule(schedule)
	})
	if err != nil {
		return err
	}

	for i := 0; i < cancelled; i++ {
		metrics.IncCancellation("cascade")
	}

	s.invalidateAvailability(ctx, scheduleID)
	s.publishScheduleEvent(events.EventScheduleCancelled, scheduleID, courseID, cancelled)
	return nil
}

// CreateScheduleRequest carries the fields of an administrative slot creation.
type CreateScheduleRequest struct {
	CourseID    string
	CoachID     string
	Date        string
	StartTime   string
	EndTime     string
	MaxCapacity int
}

// CreateSchedule creates a bookable slot with an empty counter.
func (s *BookingService) CreateSchedule(ctx context.Context, req CreateScheduleRequest, asAdmin bool) (*models.Schedule, error) {
	if !asAdmin {
		return nil, domain.ErrPermissionDenied
	}
	if req.CourseID == "" || req.CoachID == "" || req.Date == "" || req.StartTime == "" || req.EndTime == "" {
		return nil, fmt.Errorf("%w: course_id, coach_id, date, start_time and end_time are required", domain.ErrInvalidInput)
	}
	if req.MaxCapacity < 0 {
		return nil, fmt.Errorf("%w: max_capacity must be positive", domain.ErrInvalidInput)
	}
	if _, err := composeStart(req.Date, req.StartTime); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidScheduleTime, err)
	}

	capacity := req.MaxCapacity
	if capacity == 0 {
		capacity = s.defaultCap
	}

	schedule := &models.Schedule{
		ID:          uuid.NewString(),
		CourseID:    req.CourseID,
		CoachID:     req.CoachID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxCapacity: capacity,
		BookedCount: 0,
		Status:      models.ScheduleAvailable,
	}
	if err := s.store.CreateSchedule(ctx, schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

// GetAvailability reports the current occupancy of one schedule, through the
// cache when one is configured. Cancelled schedules report their frozen
// counter with status cancelled.
func (s *BookingService) GetAvailability(ctx context.Context, scheduleID string) (*models.Availability, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, scheduleID)
		if err != nil {
			s.logger.Warn().Err(err).Str("schedule_id", scheduleID).Msg("availability cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	schedule, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	availability := &models.Availability{
		ScheduleID:     schedule.ID,
		BookedCount:    schedule.BookedCount,
		MaxCapacity:    schedule.MaxCapacity,
		AvailableSeats: schedule.AvailableSeats(),
		Status:         schedule.Status,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, availability); err != nil {
			s.logger.Warn().Err(err).Str("schedule_id", scheduleID).Msg("availability cache write failed")
		}
	}
	return availability, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	filter = filter.Normalize()
	items, total, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.BookingPage{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (s *BookingService) ListSchedules(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	return s.store.ListSchedules(ctx, filter)
}

func composeStart(date, startTime string) (time.Time, error) {
	// No zone travels with the data; local time is the contract.
	return time.ParseInLocation("2006-01-02 15:04", date+" "+startTime, time.Local)
}

func reserveOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrDuplicateBooking):
		return "duplicate"
	case errors.Is(err, domain.ErrScheduleNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrScheduleCancelled):
		return "schedule_cancelled"
	case errors.Is(err, domain.ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

func (s *BookingService) invalidateAvailability(ctx context.Context, scheduleID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, scheduleID); err != nil {
		s.logger.Warn().Err(err).Str("schedule_id", scheduleID).Msg("availability cache invalidate failed")
	}
}

func (s *BookingService) publishBookingEvent(eventType string, booking *models.Booking, byAdmin bool) {
	if s.eventBus == nil || booking == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		ScheduleID: booking.ScheduleID,
		CourseID:   booking.CourseID,
		UserID:     booking.UserID,
		Status:     booking.Status,
		Date:       booking.Date,
		StartTime:  booking.StartTime,
		ByAdmin:    byAdmin,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) publishScheduleEvent(eventType, scheduleID, courseID string, cancelledCount int) {
	if s.eventBus == nil {
		return
	}

	payload := events.ScheduleEventPayload{
		ScheduleID:     scheduleID,
		CourseID:       courseID,
		Status:         models.ScheduleCancelled,
		CancelledCount: cancelledCount,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("schedule_id", scheduleID).Msg("publish event error")
	}
}
