package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"
)

// UpdateScheduleTx runs fn inside one immediate transaction keyed by the
// schedule. The schedule row is re-read after the write lock is taken, so fn
// always validates against the most recently committed state; SQLite's busy
// timeout bounds the wait for the lock. Any error from fn rolls everything
// back.
func (db *DB) UpdateScheduleTx(ctx context.Context, scheduleID string, fn func(tx domain.Tx) error) error {
	sqlTx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return domain.ErrLockTimeout
		}
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	var schedule *models.Schedule
	row := sqlTx.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM course_schedules WHERE id = ?`, scheduleID)
	schedule, err = scanScheduleInto(row)
	if err != nil && !errors.Is(err, domain.ErrScheduleNotFound) {
		return err
	}

	tx := &storeTx{ctx: ctx, tx: sqlTx, schedule: schedule}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		if isBusy(err) {
			return domain.ErrLockTimeout
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	// mattn/go-sqlite3 reports lock contention past busy_timeout as
	// "database is locked" / "database table is locked".
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// storeTx implements domain.Tx over one open SQLite transaction.
type storeTx struct {
	ctx      context.Context
	tx       *sql.Tx
	schedule *models.Schedule
}

func (t *storeTx) Schedule() *models.Schedule {
	return t.schedule
}

func (t *storeTx) PutSchedule(schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now()
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE course_schedules
            SET booked_count = ?, status = ?, updated_at = ?
          WHERE id = ?`,
		schedule.BookedCount, schedule.Status, schedule.UpdatedAt, schedule.ID)
	if err != nil {
		return fmt.Errorf("failed to update schedule in tx: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (t *storeTx) InsertBooking(booking *models.Booking) error {
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO course_bookings (`+bookingColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.ID, booking.ScheduleID, booking.CourseID, booking.CoachID,
		booking.UserID, booking.UserName, booking.UserPhone,
		booking.Date, booking.StartTime, booking.EndTime,
		booking.Status, booking.Remark, booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}
	return nil
}

func (t *storeTx) UpdateBookingStatus(id, status string) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE course_bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update booking status in tx: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (t *storeTx) FindActiveBooking(userID, scheduleID string) (*models.Booking, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+bookingColumns+` FROM course_bookings
          WHERE user_id = ? AND schedule_id = ? AND status IN (?, ?)
          LIMIT 1`,
		userID, scheduleID, models.StatusConfirmed, models.StatusPending)
	b, err := scanBookingInto(row)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, nil
	}
	return b, err
}

func (t *storeTx) ActiveBookingsBySchedule(scheduleID string) ([]*models.Booking, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+bookingColumns+` FROM course_bookings
          WHERE schedule_id = ? AND status IN (?, ?)`,
		scheduleID, models.StatusConfirmed, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list active bookings in tx: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBookingInto(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
