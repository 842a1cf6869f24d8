package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

var classRowColumns = []string{"id", "subject", "faculty_id", "branch", "year", "section", "day_of_week", "periods", "archived_at", "created_at", "updated_at"}

func TestScheduleFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_schedules cs WHERE cs.id = $1 AND cs.archived_at IS NULL LIMIT 1")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows(classRowColumns).
			AddRow("class-1", "Operating Systems", "F1", "CSE", 3, "A", "MONDAY", "1,2,3", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM class_roster WHERE class_id = $1 ORDER BY student_id")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("S1").AddRow("S2"))

	class, err := repo.FindByID(context.Background(), "class-1")
	require.NoError(t, err)
	assert.Equal(t, models.PeriodSet{1, 2, 3}, class.Periods)
	assert.Equal(t, []string{"S1", "S2"}, class.Roster)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleFindByIDMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery("FROM class_schedules cs WHERE cs.id").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(classRowColumns))

	_, err := repo.FindByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestScheduleListBySectionAttachesRosters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_schedules cs WHERE cs.branch = $1 AND cs.year = $2 AND cs.section = $3 AND cs.archived_at IS NULL ORDER BY cs.day_of_week, cs.id")).
		WithArgs("CSE", 3, "A").
		WillReturnRows(sqlmock.NewRows(classRowColumns).
			AddRow("c1", "DBMS", "F1", "CSE", 3, "A", "MONDAY", "1,2", nil, now, now).
			AddRow("c2", "Networks", "F2", "CSE", 3, "A", "TUESDAY", "3", nil, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT r.class_id, r.student_id FROM class_roster r")).
		WithArgs("CSE", 3, "A").
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "student_id"}).
			AddRow("c1", "S1").AddRow("c1", "S2").AddRow("c2", "S1"))

	classes, err := repo.ListBySection(context.Background(), "CSE", 3, "A")
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, []string{"S1", "S2"}, classes[0].Roster)
	assert.Equal(t, []string{"S1"}, classes[1].Roster)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleReplaceSectionCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_roster WHERE class_id IN (SELECT id FROM class_schedules WHERE branch = $1 AND year = $2 AND section = $3 AND archived_at IS NULL)")).
		WithArgs("CSE", 3, "A").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_schedules WHERE branch = $1 AND year = $2 AND section = $3 AND archived_at IS NULL")).
		WithArgs("CSE", 3, "A").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_schedules")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_roster")).WithArgs("c1", "S1").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_roster")).WithArgs("c1", "S2").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	classes := []models.ClassSchedule{{ID: "c1", Subject: "DBMS", FacultyID: "F1", DayOfWeek: "MONDAY", Periods: models.PeriodSet{1, 2}, Roster: []string{"S1", "S2"}}}
	err := repo.ReplaceSection(context.Background(), models.SectionKey{Branch: "CSE", Year: 3, Section: "A"}, classes)
	require.NoError(t, err)
	assert.Equal(t, "CSE", classes[0].Branch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleReplaceSectionRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_roster")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_schedules")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO class_schedules")).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	classes := []models.ClassSchedule{{ID: "c1", Subject: "DBMS", FacultyID: "F1", DayOfWeek: "MONDAY", Periods: models.PeriodSet{1}}}
	err := repo.ReplaceSection(context.Background(), models.SectionKey{Branch: "CSE", Year: 3, Section: "A"}, classes)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleArchiveSection(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	at := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_schedules SET archived_at = $4")).
		WithArgs("CSE", 3, "A", at).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.ArchiveSection(context.Background(), models.SectionKey{Branch: "CSE", Year: 3, Section: "A"}, at)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
