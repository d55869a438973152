package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

const bookingColumns = `id, schedule_id, course_id, coach_id, user_id, user_name,
                 user_phone, date, start_time, end_time, status, remark,
                 created_at, updated_at`

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM course_bookings WHERE id = ?`
	b, err := scanBookingInto(db.queryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	filter = filter.Normalize()

	var conds []string
	var args []any
	if filter.ScheduleID != "" {
		conds = append(conds, "schedule_id = ?")
		args = append(args, filter.ScheduleID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM course_bookings` + where
	if err := db.queryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT ` + bookingColumns + ` FROM course_bookings` + where +
		` ORDER BY date DESC, start_time DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBookingInto(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, b)
	}
	return bookings, total, rows.Err()
}

func (db *DB) CountConfirmedBySchedule(ctx context.Context, scheduleID string) (int, error) {
	query := `SELECT COUNT(*) FROM course_bookings WHERE schedule_id = ? AND status = ?`
	var count int
	err := db.queryRow(ctx, query, scheduleID, models.StatusConfirmed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed bookings: %w", err)
	}
	return count, nil
}

func scanBookingInto(scanner rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := scanner.Scan(
		&b.ID, &b.ScheduleID, &b.CourseID, &b.CoachID, &b.UserID, &b.UserName,
		&b.UserPhone, &b.Date, &b.StartTime, &b.EndTime, &b.Status, &b.Remark,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return &b, nil
}
