package models

import (
	"fmt"
	"time"
)

// Schedule is a single bookable time slot of a course with a fixed seat
// capacity. BookedCount is a denormalized counter maintained by the booking
// service; for non-cancelled schedules it always equals the number of
// confirmed bookings. Once a schedule is cancelled the counter is frozen at
// its value at cancellation time and carries no meaning anymore.
type Schedule struct {
	ID          string    `json:"id" yaml:"id"`
	CourseID    string    `json:"course_id" yaml:"course_id"`
	CoachID     string    `json:"coach_id" yaml:"coach_id"`
	Date        string    `json:"date" yaml:"date"`             // 2006-01-02
	StartTime   string    `json:"start_time" yaml:"start_time"` // 15:04
	EndTime     string    `json:"end_time" yaml:"end_time"`     // 15:04
	MaxCapacity int       `json:"max_capacity" yaml:"max_capacity"`
	BookedCount int       `json:"booked_count" yaml:"booked_count"`
	Status      string    `json:"status" yaml:"status"` // available, full, cancelled
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// StartsAt composes Date and StartTime in the local time zone. The source
// data carries no zone, so local time is the contract for the cancellation
// window check. Malformed values are reported instead of compared.
func (s *Schedule) StartsAt() (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.StartTime, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %s has malformed start %q %q: %w", s.ID, s.Date, s.StartTime, err)
	}
	return t, nil
}

// AvailableSeats returns remaining seats, floored at zero.
func (s *Schedule) AvailableSeats() int {
	n := s.MaxCapacity - s.BookedCount
	if n < 0 {
		return 0
	}
	return n
}

// Booking is one user's reservation against a schedule. The schedule does
// not own its bookings; they are linked by ScheduleID only. Course and slot
// fields are denormalized from the schedule at reserve time so listings do
// not need joins.
type Booking struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	CourseID   string    `json:"course_id"`
	CoachID    string    `json:"coach_id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	UserPhone  string    `json:"user_phone"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Status     string    `json:"status"` // confirmed, cancelled
	Remark     string    `json:"remark"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Availability is the read-side view of one schedule's occupancy.
type Availability struct {
	ScheduleID     string `json:"schedule_id"`
	BookedCount    int    `json:"booked_count"`
	MaxCapacity    int    `json:"max_capacity"`
	AvailableSeats int    `json:"available_seats"`
	Status         string `json:"status"`
}

// BookingFilter narrows booking listings. Zero values mean "any".
type BookingFilter struct {
	ScheduleID string
	UserID     string
	Status     string
	Page       int
	PageSize   int
}

// Normalize applies pagination defaults in place and returns the filter.
func (f BookingFilter) Normalize() BookingFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > MaxPageSize {
		f.PageSize = DefaultPageSize
	}
	return f
}

// BookingPage is one page of a booking listing.
type BookingPage struct {
	Items    []*Booking `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// ScheduleFilter narrows schedule listings.
type ScheduleFilter struct {
	CourseID string
	CoachID  string
	Date     string
	Status   string
}
