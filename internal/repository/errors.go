package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert loses to an existing unique row.
var ErrDuplicate = errors.New("duplicate row")

const (
	pqUniqueViolation      = "23505"
	sqliteConstraintUnique = 2067
	sqliteConstraintPK     = 1555
)

// isUniqueViolation recognises unique constraint failures from lib/pq and
// modernc sqlite, for statements that cannot use ON CONFLICT.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		code := coded.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPK
	}
	return false
}
