// Package realtime carries presence events between scanners, students and
// observers over a websocket and feeds them into the session manager.
package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame is the wire envelope. Every message travels as one JSON object.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Frame types sent by clients.
const (
	TypeScanStart         = "scan_start"
	TypeScanStop          = "scan_stop"
	TypeDeviceDiscovered  = "device_discovered"
	TypeAttendanceRequest = "attendance_request"
	TypeSubscribe         = "subscribe"
)

// Frame types sent by the server.
const (
	TypeAttendanceMarked = "attendance_marked"
	TypeScanStarted      = "scan_started"
	TypeScanStopped      = "scan_stopped"
	TypeDeviceSeen       = "device_seen"
	TypeAttendanceResult = "attendance_result"
	TypeSessionClosed    = "session_closed"
	TypeSubscribed       = "subscribed"
	TypeError            = "error"
)

// Message is implemented by every payload type and only by them.
type Message interface {
	frameType() string
}

// ScanStart asks the server to accept sightings for the faculty's active session.
type ScanStart struct {
	FacultyID string `json:"facultyId,omitempty"`
}

// ScanStop silences sightings. The session itself stays active.
type ScanStop struct {
	FacultyID string `json:"facultyId,omitempty"`
}

// DeviceDiscovered is one raw sighting.
type DeviceDiscovered struct {
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName,omitempty"`
	Signal     int     `json:"signal"`
	StudentID  *string `json:"studentId,omitempty"`
	Period     *int    `json:"period,omitempty"`
	SessionID  string  `json:"sessionId,omitempty"`
}

// AttendanceRequest is a student's own request to be marked present.
type AttendanceRequest struct {
	StudentID string `json:"studentId,omitempty"`
	DeviceID  string `json:"deviceId"`
	Signal    *int   `json:"signal,omitempty"`
}

// Subscribe attaches the connection to a session's broadcasts.
type Subscribe struct {
	SessionID string `json:"sessionId"`
}

// AttendanceMarked is broadcast after a record is written.
type AttendanceMarked struct {
	SessionID string `json:"sessionId"`
	StudentID string `json:"studentId"`
	DeviceID  string `json:"deviceId,omitempty"`
	Period    int    `json:"period"`
}

// ScanStarted confirms discovery is on.
type ScanStarted struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ScanStopped confirms discovery is off.
type ScanStopped struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// DeviceSeen surfaces a sighting to observers.
type DeviceSeen struct {
	SessionID  string  `json:"sessionId"`
	DeviceID   string  `json:"deviceId"`
	DeviceName string  `json:"deviceName,omitempty"`
	Signal     *int    `json:"signal,omitempty"`
	StudentID  *string `json:"studentId,omitempty"`
}

// AttendanceResult answers an AttendanceRequest.
type AttendanceResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Period    *int   `json:"period,omitempty"`
}

// SessionClosed tells observers the session was completed or cancelled.
type SessionClosed struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Subscribed confirms a Subscribe.
type Subscribed struct {
	SessionID string `json:"sessionId"`
}

// ErrorMessage reports a rejected frame. Code mirrors the HTTP error codes.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ScanStart) frameType() string         { return TypeScanStart }
func (ScanStop) frameType() string          { return TypeScanStop }
func (DeviceDiscovered) frameType() string  { return TypeDeviceDiscovered }
func (AttendanceRequest) frameType() string { return TypeAttendanceRequest }
func (Subscribe) frameType() string         { return TypeSubscribe }
func (AttendanceMarked) frameType() string  { return TypeAttendanceMarked }
func (ScanStarted) frameType() string       { return TypeScanStarted }
func (ScanStopped) frameType() string       { return TypeScanStopped }
func (DeviceSeen) frameType() string        { return TypeDeviceSeen }
func (AttendanceResult) frameType() string  { return TypeAttendanceResult }
func (SessionClosed) frameType() string     { return TypeSessionClosed }
func (Subscribed) frameType() string        { return TypeSubscribed }
func (ErrorMessage) frameType() string      { return TypeError }

// Encode wraps a message in a frame.
func Encode(requestID string, msg Message) (Frame, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", msg.frameType(), err)
	}
	return Frame{Type: msg.frameType(), RequestID: requestID, Payload: payload}, nil
}

func mustEncode(requestID string, msg Message) Frame {
	frame, err := Encode(requestID, msg)
	if err != nil {
		return Frame{Type: TypeError, RequestID: requestID, Payload: json.RawMessage(`{"code":"INTERNAL_ERROR","message":"unencodable frame"}`)}
	}
	return frame
}

// Decode turns a frame into its typed message. Unknown types are an error.
func Decode(frame Frame) (Message, error) {
	var msg Message
	switch strings.TrimSpace(frame.Type) {
	case TypeScanStart:
		msg = &ScanStart{}
	case TypeScanStop:
		msg = &ScanStop{}
	case TypeDeviceDiscovered:
		msg = &DeviceDiscovered{}
	case TypeAttendanceRequest:
		msg = &AttendanceRequest{}
	case TypeSubscribe:
		msg = &Subscribe{}
	case TypeAttendanceMarked:
		msg = &AttendanceMarked{}
	case TypeScanStarted:
		msg = &ScanStarted{}
	case TypeScanStopped:
		msg = &ScanStopped{}
	case TypeDeviceSeen:
		msg = &DeviceSeen{}
	case TypeAttendanceResult:
		msg = &AttendanceResult{}
	case TypeSessionClosed:
		msg = &SessionClosed{}
	case TypeSubscribed:
		msg = &Subscribed{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("unsupported frame type %q", frame.Type)
	}
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, msg); err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", frame.Type, err)
		}
	}
	return msg, nil
}
