package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

// SessionRepository persists attendance session headers. A partial unique
// index keeps at most one active session per class and date across processes.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, class_id, session_date, periods, faculty_id, status, started_at, ended_at`

// Create inserts an active session. ErrDuplicate means another active session
// already holds the class and date.
func (r *SessionRepository) Create(ctx context.Context, session *models.AttendanceSession) error {
	const query = `INSERT INTO attendance_sessions (id, class_id, session_date, periods, faculty_id, status, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING RETURNING id`
	var id string
	err := r.db.GetContext(ctx, &id, query,
		session.ID, session.ClassID, session.Date, session.Periods, session.FacultyID, session.Status, session.StartedAt, session.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create attendance session: %w", err)
	}
	return nil
}

// UpdateStatus moves a session to a terminal status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) error {
	const query = `UPDATE attendance_sessions SET status = $2, ended_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, endedAt)
	if err != nil {
		return fmt.Errorf("update attendance session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance session rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads a session header without records.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1 LIMIT 1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance session: %w", err)
	}
	return &session, nil
}

// ListByStatus returns sessions in the given status, oldest first.
func (r *SessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE status = $1 ORDER BY started_at`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, status); err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	return sessions, nil
}
