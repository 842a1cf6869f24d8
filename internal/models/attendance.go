package models

import "time"

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusAbsent  AttendanceStatus = "absent"
	AttendanceStatusLate    AttendanceStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// AttendanceMethod records how presence was established.
type AttendanceMethod string

const (
	MethodProximity AttendanceMethod = "proximity"
	MethodManual    AttendanceMethod = "manual"
)

// Valid returns true when the method is a supported value.
func (m AttendanceMethod) Valid() bool {
	return m == MethodProximity || m == MethodManual
}

// AttendanceRecord is a single (student, date, period) mark. Records are
// written once and never updated.
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	SessionID  *string          `db:"session_id" json:"session_id,omitempty"`
	ClassID    string           `db:"class_id" json:"class_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Date       string           `db:"record_date" json:"date"`
	Period     int              `db:"period" json:"period"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Method     AttendanceMethod `db:"method" json:"method"`
	DeviceID   *string          `db:"device_id" json:"device_id,omitempty"`
	Signal     *int             `db:"signal" json:"signal,omitempty"`
	RecordedAt time.Time        `db:"recorded_at" json:"recorded_at"`
}

// AttendanceFilter narrows record queries. Empty fields are ignored.
type AttendanceFilter struct {
	SessionID string
	ClassID   string
	StudentID string
	DateFrom  string
	DateTo    string
	Period    *int
	Method    *AttendanceMethod
	Page      int
	PageSize  int
}

// PresenceRequest is a single attempt to mark a student present in a session.
type PresenceRequest struct {
	SessionID string           `json:"session_id" validate:"required"`
	StudentID string           `json:"student_id" validate:"required"`
	Period    int              `json:"period" validate:"required,min=1"`
	Method    AttendanceMethod `json:"method" validate:"required,oneof=proximity manual"`
	DeviceID  *string          `json:"device_id,omitempty"`
	Signal    *int             `json:"signal,omitempty"`
}

// ImportResult summarises a bulk import.
type ImportResult struct {
	Inserted   int      `json:"inserted"`
	Duplicates int      `json:"duplicates"`
	Rejected   []string `json:"rejected,omitempty"`
}
