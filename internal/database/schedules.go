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

const scheduleColumns = `id, course_id, coach_id, date, start_time, end_time,
                 max_capacity, booked_count, status, created_at, updated_at`

func (db *DB) CreateSchedule(ctx context.Context, schedule *models.Schedule) error {
	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	query := `INSERT INTO course_schedules (` + scheduleColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.CourseID,
		schedule.CoachID,
		schedule.Date,
		schedule.StartTime,
		schedule.EndTime,
		schedule.MaxCapacity,
		schedule.BookedCount,
		schedule.Status,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (db *DB) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM course_schedules WHERE id = ?`
	return scanSchedule(db.queryRow(ctx, query, id))
}

func (db *DB) ListSchedules(ctx context.Context, filter models.ScheduleFilter) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM course_schedules`
	var conds []string
	var args []any
	if filter.CourseID != "" {
		conds = append(conds, "course_id = ?")
		args = append(args, filter.CourseID)
	}
	if filter.CoachID != "" {
		conds = append(conds, "coach_id = ?")
		args = append(args, filter.CoachID)
	}
	if filter.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, start_time ASC"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := scanScheduleRows(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduleInto(scanner rowScanner) (*models.Schedule, error) {
	var s models.Schedule
	err := scanner.Scan(
		&s.ID, &s.CourseID, &s.CoachID, &s.Date, &s.StartTime, &s.EndTime,
		&s.MaxCapacity, &s.BookedCount, &s.Status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	return &s, nil
}

func scanSchedule(row *sql.Row) (*models.Schedule, error) {
	return scanScheduleInto(row)
}

func scanScheduleRows(rows *sql.Rows) (*models.Schedule, error) {
	return scanScheduleInto(rows)
}
