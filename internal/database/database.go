package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite-backed store for schedules and bookings. Writes to one
// schedule are serialized by immediate transactions; the busy timeout bounds
// how long a writer waits for the lock instead of failing straight away.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{db: db, log: logger.With().Str("component", "database").Logger()}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS course_schedules (
            id TEXT PRIMARY KEY,
            course_id TEXT NOT NULL,
            coach_id TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            max_capacity INTEGER NOT NULL,
            booked_count INTEGER NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'available',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS course_bookings (
            id TEXT PRIMARY KEY,
            schedule_id TEXT NOT NULL,
            course_id TEXT NOT NULL,
            coach_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            user_name TEXT NOT NULL,
            user_phone TEXT NOT NULL,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            status TEXT NOT NULL,
            remark TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_schedules_course ON course_schedules(course_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_date ON course_schedules(date)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_status ON course_schedules(status)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_schedule ON course_bookings(schedule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON course_bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON course_bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_date ON course_bookings(date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("executing %q: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}
