package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestFindByIdentifier(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "identifier", "role", "full_name", "password_hash", "active", "created_at", "updated_at"}).
		AddRow("u-1", "21CS001", string(models.RoleStudent), "Asha", "hash", true, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, identifier, role, full_name, password_hash, active, created_at, updated_at FROM users WHERE role = $1 AND identifier = $2 LIMIT 1")).
		WithArgs(models.RoleStudent, "21CS001").
		WillReturnRows(rows)

	user, err := repo.FindByIdentifier(context.Background(), models.RoleStudent, "21CS001")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.User{Identifier: "F-01", Role: models.RoleFaculty, FullName: "R. Iyer", PasswordHash: "hash", Active: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type codedError struct{ code int }

func (e codedError) Error() string { return "constraint failed" }
func (e codedError) Code() int     { return e.code }

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, isUniqueViolation(codedError{code: 2067}))
	assert.True(t, isUniqueViolation(codedError{code: 1555}))
	assert.False(t, isUniqueViolation(codedError{code: 19}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
