package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Dates are stored as YYYY-MM-DD text so both drivers compare and scan them the same way.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	identifier TEXT NOT NULL,
	role TEXT NOT NULL,
	full_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (role, identifier)
)`,
	`CREATE TABLE IF NOT EXISTS class_schedules (
	id TEXT PRIMARY KEY,
	subject TEXT NOT NULL,
	faculty_id TEXT NOT NULL,
	branch TEXT NOT NULL,
	year INTEGER NOT NULL,
	section TEXT NOT NULL,
	day_of_week TEXT NOT NULL,
	periods TEXT NOT NULL,
	archived_at TIMESTAMP NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_class_schedules_section ON class_schedules (branch, year, section)`,
	`CREATE INDEX IF NOT EXISTS idx_class_schedules_faculty ON class_schedules (faculty_id)`,
	`CREATE TABLE IF NOT EXISTS class_roster (
	class_id TEXT NOT NULL REFERENCES class_schedules (id) ON DELETE CASCADE,
	student_id TEXT NOT NULL,
	PRIMARY KEY (class_id, student_id)
)`,
	`CREATE TABLE IF NOT EXISTS attendance_sessions (
	id TEXT PRIMARY KEY,
	class_id TEXT NOT NULL,
	session_date TEXT NOT NULL,
	periods TEXT NOT NULL,
	faculty_id TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_attendance_sessions_active ON attendance_sessions (class_id, session_date) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
	id TEXT PRIMARY KEY,
	session_id TEXT NULL,
	class_id TEXT NOT NULL,
	student_id TEXT NOT NULL,
	record_date TEXT NOT NULL,
	period INTEGER NOT NULL,
	status TEXT NOT NULL,
	method TEXT NOT NULL,
	device_id TEXT NULL,
	signal INTEGER NULL,
	recorded_at TIMESTAMP NOT NULL,
	UNIQUE (student_id, record_date, period)
)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_records_session ON attendance_records (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_records_class_date ON attendance_records (class_id, record_date)`,
}

// Migrate creates the tables and indexes used by the repositories. Every
// statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
