package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// MemoryStore is an in-memory implementation of domain.Store with the same
// contention-control contract as the SQLite store: commits are serialized
// per schedule id and every closure re-validates against the most recently
// committed state. It backs the concurrency harness and service tests; it is
// a stand-in for the real store's row lock, not a correctness mechanism of
// its own.
type MemoryStore struct {
	mu        sync.RWMutex
	schedules map[string]*models.Schedule
	bookings  map[string]*models.Booking

	locks       sync.Map // schedule id -> chan struct{} with capacity 1
	lockTimeout time.Duration
}

const defaultLockTimeout = 5 * time.Second

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schedules:   make(map[string]*models.Schedule),
		bookings:    make(map[string]*models.Booking),
		lockTimeout: defaultLockTimeout,
	}
}

// SetLockTimeout overrides the bounded wait for the per-schedule section.
func (s *MemoryStore) SetLockTimeout(d time.Duration) {
	if d > 0 {
		s.lockTimeout = d
	}
}

func (s *MemoryStore) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *schedule
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.schedules[cp.ID] = &cp
	schedule.CreatedAt = cp.CreatedAt
	schedule.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	cp := *schedule
	return &cp, nil
}

func (s *MemoryStore) ListSchedules(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var schedules []*models.Schedule
	for _, schedule := range s.schedules {
		if filter.CourseID != "" && schedule.CourseID != filter.CourseID {
			continue
		}
		if filter.CoachID != "" && schedule.CoachID != filter.CoachID {
			continue
		}
		if filter.Date != "" && schedule.Date != filter.Date {
			continue
		}
		if filter.Status != "" && schedule.Status != filter.Status {
			continue
		}
		cp := *schedule
		schedules = append(schedules, &cp)
	}

	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].Date != schedules[j].Date {
			return schedules[i].Date < schedules[j].Date
		}
		return schedules[i].StartTime < schedules[j].StartTime
	})
	return schedules, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	booking, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *booking
	return &cp, nil
}

func (s *MemoryStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	var matched []*models.Booking
	for _, booking := range s.bookings {
		if filter.ScheduleID != "" && booking.ScheduleID != filter.ScheduleID {
			continue
		}
		if filter.UserID != "" && booking.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		cp := *booking
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Date != matched[j].Date {
			return matched[i].Date > matched[j].Date
		}
		if matched[i].StartTime != matched[j].StartTime {
			return matched[i].StartTime > matched[j].StartTime
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) CountConfirmedBySchedule(ctx context.Context, scheduleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, booking := range s.bookings {
		if booking.ScheduleID == scheduleID && booking.Status == models.StatusConfirmed {
			count++
		}
	}
	return count, nil
}

// UpdateScheduleTx serializes commits per schedule through a buffered
// channel lock. The wait is bounded by the context and the lock timeout;
// there is no spinning. The closure works on copies and nothing becomes
// visible until it returns nil.
func (s *MemoryStore) UpdateScheduleTx(ctx context.Context, scheduleID string, fn func(tx domain.Tx) error) error {
	lock := s.scheduleLock(scheduleID)

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case lock <- struct{}{}:
		defer func() { <-lock }()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return domain.ErrLockTimeout
	}

	s.mu.RLock()
	var snapshot *models.Schedule
	if committed, ok := s.schedules[scheduleID]; ok {
		cp := *committed
		snapshot = &cp
	}
	s.mu.RUnlock()

	tx := &memTx{store: s, schedule: snapshot, statusUpdates: make(map[string]string)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.scheduleDirty && tx.schedule != nil {
		cp := *tx.schedule
		s.schedules[cp.ID] = &cp
	}
	for _, booking := range tx.inserts {
		cp := *booking
		s.bookings[cp.ID] = &cp
	}
	for id, status := range tx.statusUpdates {
		if booking, ok := s.bookings[id]; ok {
			booking.Status = status
			booking.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStore) scheduleLock(scheduleID string) chan struct{} {
	if v, ok := s.locks.Load(scheduleID); ok {
		return v.(chan struct{})
	}
	lock := make(chan struct{}, 1)
	actual, _ := s.locks.LoadOrStore(scheduleID, lock)
	return actual.(chan struct{})
}

// memTx stages writes for one commit unit. Reads observe committed state
// plus the staged writes of this unit.
type memTx struct {
	store         *MemoryStore
	schedule      *models.Schedule
	scheduleDirty bool
	inserts       []*models.Booking
	statusUpdates map[string]string
}

func (t *memTx) Schedule() *models.Schedule {
	return t.schedule
}

func (t *memTx) PutSchedule(schedule *models.Schedule) error {
	if t.schedule == nil || t.schedule.ID != schedule.ID {
		return domain.ErrScheduleNotFound
	}
	schedule.UpdatedAt = time.Now()
	t.schedule = schedule
	t.scheduleDirty = true
	return nil
}

func (t *memTx) InsertBooking(booking *models.Booking) error {
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	t.inserts = append(t.inserts, booking)
	return nil
}

func (t *memTx) UpdateBookingStatus(id, status string) error {
	for _, booking := range t.inserts {
		if booking.ID == id {
			booking.Status = status
			return nil
		}
	}

	t.store.mu.RLock()
	_, ok := t.store.bookings[id]
	t.store.mu.RUnlock()
	if !ok {
		return domain.ErrBookingNotFound
	}
	t.statusUpdates[id] = status
	return nil
}

func (t *memTx) FindActiveBooking(userID, scheduleID string) (*models.Booking, error) {
	for _, booking := range t.inserts {
		if booking.UserID == userID && booking.ScheduleID == scheduleID &&
			models.IsActiveBookingStatus(t.effectiveStatus(booking.ID, booking.Status)) {
			cp := *booking
			return &cp, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, booking := range t.store.bookings {
		if booking.UserID == userID && booking.ScheduleID == scheduleID &&
			models.IsActiveBookingStatus(t.effectiveStatus(booking.ID, booking.Status)) {
			cp := *booking
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) ActiveBookingsBySchedule(scheduleID string) ([]*models.Booking, error) {
	var bookings []*models.Booking

	t.store.mu.RLock()
	for _, booking := range t.store.bookings {
		if booking.ScheduleID == scheduleID &&
			models.IsActiveBookingStatus(t.effectiveStatus(booking.ID, booking.Status)) {
			cp := *booking
			bookings = append(bookings, &cp)
		}
	}
	t.store.mu.RUnlock()

	for _, booking := range t.inserts {
		if booking.ScheduleID == scheduleID &&
			models.IsActiveBookingStatus(t.effectiveStatus(booking.ID, booking.Status)) {
			cp := *booking
			bookings = append(bookings, &cp)
		}
	}
	return bookings, nil
}

func (t *memTx) effectiveStatus(id, committed string) string {
	if status, ok := t.statusUpdates[id]; ok {
		return status
	}
	return committed
}
