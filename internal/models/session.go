package models

import "time"

// SessionStatus is the lifecycle state of an attendance session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the session can no longer accept presence.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// AttendanceSession is one run of attendance taking for a class on a date.
type AttendanceSession struct {
	ID        string             `db:"id" json:"id"`
	ClassID   string             `db:"class_id" json:"class_id"`
	Date      string             `db:"session_date" json:"date"`
	Periods   PeriodSet          `db:"periods" json:"periods"`
	FacultyID string             `db:"faculty_id" json:"faculty_id"`
	Status    SessionStatus      `db:"status" json:"status"`
	StartedAt time.Time          `db:"started_at" json:"started_at"`
	EndedAt   *time.Time         `db:"ended_at" json:"ended_at,omitempty"`
	Scanning  bool               `db:"-" json:"scanning"`
	Records   []AttendanceRecord `db:"-" json:"records"`
}

// StartSessionRequest opens a session.
type StartSessionRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Periods   []int  `json:"periods"`
	FacultyID string `json:"faculty_id"`
}

// DiscoveredDevice is a transient sighting attached to a live session.
type DiscoveredDevice struct {
	DeviceID     string    `json:"device_id"`
	DeviceName   string    `json:"device_name"`
	Signal       int       `json:"signal"`
	StudentID    *string   `json:"student_id,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SessionEventKind tags notifications emitted by the session manager.
type SessionEventKind string

const (
	EventAttendanceMarked SessionEventKind = "attendance_marked"
	EventScanStarted      SessionEventKind = "scan_started"
	EventScanStopped      SessionEventKind = "scan_stopped"
	EventDeviceSeen       SessionEventKind = "device_seen"
	EventSessionClosed    SessionEventKind = "session_closed"
)

// SessionEvent is delivered to observers of a session.
type SessionEvent struct {
	Kind       SessionEventKind `json:"kind"`
	SessionID  string           `json:"session_id"`
	StudentID  string           `json:"student_id,omitempty"`
	DeviceID   string           `json:"device_id,omitempty"`
	DeviceName string           `json:"device_name,omitempty"`
	Period     int              `json:"period,omitempty"`
	Signal     *int             `json:"signal,omitempty"`
	Status     SessionStatus    `json:"status,omitempty"`
	Message    string           `json:"message,omitempty"`
	At         time.Time        `json:"at"`
}
