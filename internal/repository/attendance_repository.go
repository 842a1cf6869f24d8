package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

// AttendanceRepository persists attendance records. The (student_id,
// record_date, period) unique constraint is the final word on duplicates.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const recordColumns = `id, session_id, class_id, student_id, record_date, period, status, method, device_id, signal, recorded_at`

// Insert writes a record once. ErrDuplicate is returned when the student
// already has a record for that date and period; the existing row is untouched.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_records (id, session_id, class_id, student_id, record_date, period, status, method, device_id, signal, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING RETURNING id`
	var id string
	err := r.db.GetContext(ctx, &id, query,
		record.ID, record.SessionID, record.ClassID, record.StudentID, record.Date, record.Period,
		record.Status, record.Method, record.DeviceID, record.Signal, record.RecordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert attendance record: %w", err)
	}
	return nil
}

// ListBySession returns a session's records in the order they were written.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records WHERE session_id = $1 ORDER BY recorded_at, id`
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return rows, nil
}

// List returns records matching the filter along with the total count.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SessionID != "" {
		where = append(where, fmt.Sprintf("session_id = $%d", len(args)+1))
		args = append(args, filter.SessionID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.DateFrom != "" {
		where = append(where, fmt.Sprintf("record_date >= $%d", len(args)+1))
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		where = append(where, fmt.Sprintf("record_date <= $%d", len(args)+1))
		args = append(args, filter.DateTo)
	}
	if filter.Period != nil {
		where = append(where, fmt.Sprintf("period = $%d", len(args)+1))
		args = append(args, *filter.Period)
	}
	if filter.Method != nil && filter.Method.Valid() {
		where = append(where, fmt.Sprintf("method = $%d", len(args)+1))
		args = append(args, *filter.Method)
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 1000 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE %s ORDER BY record_date, period, student_id LIMIT %d OFFSET %d`,
		recordColumns, whereClause, size, offset)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM attendance_records WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return rows, total, nil
}
