package database

import (
	"context"
	"path/filepath"
	"testing"

	"slotbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func insertTestSchedule(t *testing.T, db *DB, id string, capacity int) *models.Schedule {
	t.Helper()
	schedule := &models.Schedule{
		ID: id, CourseID: "course-1", CoachID: "coach-1",
		Date: "2026-09-01", StartTime: "10:00", EndTime: "11:00",
		MaxCapacity: capacity, Status: models.ScheduleAvailable,
	}
	require.NoError(t, db.CreateSchedule(context.Background(), schedule))
	return schedule
}
