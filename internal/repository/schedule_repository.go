package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

// ScheduleRepository manages class schedules and their rosters.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const classColumns = `cs.id, cs.subject, cs.faculty_id, cs.branch, cs.year, cs.section, cs.day_of_week, cs.periods, cs.archived_at, cs.created_at, cs.updated_at`

type rosterRow struct {
	ClassID   string `db:"class_id"`
	StudentID string `db:"student_id"`
}

// ListBySection returns the live classes of a branch/year/section with rosters attached.
func (r *ScheduleRepository) ListBySection(ctx context.Context, branch string, year int, section string) ([]models.ClassSchedule, error) {
	const where = `cs.branch = $1 AND cs.year = $2 AND cs.section = $3 AND cs.archived_at IS NULL`
	return r.listWithRosters(ctx, where, branch, year, section)
}

// ListByFaculty returns the live classes taught by a faculty member.
func (r *ScheduleRepository) ListByFaculty(ctx context.Context, facultyID string) ([]models.ClassSchedule, error) {
	const where = `cs.faculty_id = $1 AND cs.archived_at IS NULL`
	return r.listWithRosters(ctx, where, facultyID)
}

func (r *ScheduleRepository) listWithRosters(ctx context.Context, where string, args ...interface{}) ([]models.ClassSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_schedules cs WHERE %s ORDER BY cs.day_of_week, cs.id`, classColumns, where)
	var classes []models.ClassSchedule
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list class schedules: %w", err)
	}
	if len(classes) == 0 {
		return classes, nil
	}

	rosterQuery := fmt.Sprintf(`SELECT r.class_id, r.student_id FROM class_roster r
JOIN class_schedules cs ON cs.id = r.class_id
WHERE %s ORDER BY r.class_id, r.student_id`, where)
	var rows []rosterRow
	if err := r.db.SelectContext(ctx, &rows, rosterQuery, args...); err != nil {
		return nil, fmt.Errorf("list class rosters: %w", err)
	}
	byClass := make(map[string][]string, len(classes))
	for _, row := range rows {
		byClass[row.ClassID] = append(byClass[row.ClassID], row.StudentID)
	}
	for i := range classes {
		classes[i].Roster = byClass[classes[i].ID]
	}
	return classes, nil
}

// FindByID returns a live class with its roster. Archived classes behave as missing.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ClassSchedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_schedules cs WHERE cs.id = $1 AND cs.archived_at IS NULL LIMIT 1`, classColumns)
	var class models.ClassSchedule
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class schedule: %w", err)
	}
	roster, err := r.Roster(ctx, id)
	if err != nil {
		return nil, err
	}
	class.Roster = roster
	return &class, nil
}

// Roster returns the student ids enrolled in a class.
func (r *ScheduleRepository) Roster(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT student_id FROM class_roster WHERE class_id = $1 ORDER BY student_id`
	var roster []string
	if err := r.db.SelectContext(ctx, &roster, query, classID); err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	return roster, nil
}

// ReplaceSection swaps the live classes of a section for the provided set inside
// one transaction. A class id already held by another section or an archived
// term yields ErrDuplicate.
func (r *ScheduleRepository) ReplaceSection(ctx context.Context, key models.SectionKey, classes []models.ClassSchedule) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace section: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	// Archived terms stay untouched; attendance history still points at them.
	const deleteRoster = `DELETE FROM class_roster WHERE class_id IN (SELECT id FROM class_schedules WHERE branch = $1 AND year = $2 AND section = $3 AND archived_at IS NULL)`
	if _, err := tx.ExecContext(ctx, deleteRoster, key.Branch, key.Year, key.Section); err != nil {
		return fmt.Errorf("clear section roster: %w", err)
	}
	const deleteClasses = `DELETE FROM class_schedules WHERE branch = $1 AND year = $2 AND section = $3 AND archived_at IS NULL`
	if _, err := tx.ExecContext(ctx, deleteClasses, key.Branch, key.Year, key.Section); err != nil {
		return fmt.Errorf("clear section classes: %w", err)
	}

	const insertClass = `INSERT INTO class_schedules (id, subject, faculty_id, branch, year, section, day_of_week, periods, archived_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10)`
	const insertRoster = `INSERT INTO class_roster (class_id, student_id) VALUES ($1, $2)`
	now := time.Now().UTC()
	for i := range classes {
		class := &classes[i]
		if class.ID == "" {
			class.ID = uuid.NewString()
		}
		class.Branch, class.Year, class.Section = key.Branch, key.Year, key.Section
		class.CreatedAt, class.UpdatedAt = now, now
		if _, err := tx.ExecContext(ctx, insertClass, class.ID, class.Subject, class.FacultyID, class.Branch, class.Year, class.Section, class.DayOfWeek, class.Periods, class.CreatedAt, class.UpdatedAt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("class id %s is already taken: %w", class.ID, ErrDuplicate)
			}
			return fmt.Errorf("insert class %s: %w", class.ID, err)
		}
		for _, studentID := range class.Roster {
			if _, err := tx.ExecContext(ctx, insertRoster, class.ID, studentID); err != nil {
				return fmt.Errorf("insert roster %s/%s: %w", class.ID, studentID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace section: %w", err)
	}
	commit = true
	return nil
}

// ArchiveSection soft-deletes every live class of a section and returns how many were archived.
func (r *ScheduleRepository) ArchiveSection(ctx context.Context, key models.SectionKey, at time.Time) (int64, error) {
	const query = `UPDATE class_schedules SET archived_at = $4, updated_at = $4 WHERE branch = $1 AND year = $2 AND section = $3 AND archived_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, key.Branch, key.Year, key.Section, at)
	if err != nil {
		return 0, fmt.Errorf("archive section: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive section rows: %w", err)
	}
	return affected, nil
}
