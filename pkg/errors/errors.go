package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a coded failure that knows its HTTP status. The same value is
// written into REST envelopes and channel error frames.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Err == nil:
		return e.Message
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code, so a copy made by Clone or Because still satisfies
// errors.Is against its sentinel.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	var t *Error
	return errors.As(target, &t) && t != nil && t.Code == e.Code
}

// Because returns a copy of e carrying cause. An empty message keeps e's.
func (e *Error) Because(cause error, message string) *Error {
	out := Clone(e, message)
	if out != nil {
		out.Err = cause
	}
	return out
}

// New declares a sentinel.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Clone copies err, replacing the message when one is given.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	out := *err
	if message != "" {
		out.Message = message
	}
	return &out
}

// FromError returns the *Error inside err, or an INTERNAL_ERROR wrapping it.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.Because(err, "")
}

var (
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid identifier or secret")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")

	// ErrCacheMiss never reaches clients; the cache service turns it into a miss.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Registry and timetable.
var (
	ErrUnknownClass      = New("UNKNOWN_CLASS", http.StatusNotFound, "class does not exist")
	ErrInvalidTimeFormat = New("INVALID_TIME_FORMAT", http.StatusBadRequest, "time must look like 9:00 AM")
	ErrUnknownPeriod     = New("UNKNOWN_PERIOD", http.StatusNotFound, "period is not part of the bell schedule")
)

// Sessions and attendance marking.
var (
	ErrInvalidPeriods       = New("INVALID_PERIODS", http.StatusBadRequest, "periods must be a non-empty subset of the class periods")
	ErrSessionAlreadyActive = New("SESSION_ALREADY_ACTIVE", http.StatusConflict, "an active session already exists for this class and date")
	ErrSessionNotActive     = New("SESSION_NOT_ACTIVE", http.StatusConflict, "session is not active")
	ErrSessionNotFound      = New("SESSION_NOT_FOUND", http.StatusNotFound, "session not found")
	ErrNoActiveSession      = New("NO_ACTIVE_SESSION", http.StatusNotFound, "no active session")
	ErrStudentNotEnrolled   = New("STUDENT_NOT_ENROLLED", http.StatusUnprocessableEntity, "student is not enrolled in this class")
	ErrPeriodNotInSession   = New("PERIOD_NOT_IN_SESSION", http.StatusUnprocessableEntity, "period is not covered by this session")
	ErrDuplicateAttendance  = New("DUPLICATE_ATTENDANCE", http.StatusConflict, "attendance already recorded for this student, date and period")
	ErrSignalTooWeak        = New("SIGNAL_TOO_WEAK", http.StatusUnprocessableEntity, "signal strength below configured threshold")
)
