package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.AttendanceSession
}

func (s *memSessions) Create(ctx context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = *session
	return nil
}

func (s *memSessions) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	session.Status = status
	session.EndedAt = &endedAt
	s.sessions[id] = session
	return nil
}

func (s *memSessions) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &session, nil
}

func (s *memSessions) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.AttendanceSession, error) {
	return nil, nil
}

type memRecords struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (r *memRecords) Insert(ctx context.Context, record *models.AttendanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%d", record.StudentID, record.Date, record.Period)
	if _, ok := r.keys[key]; ok {
		return repository.ErrDuplicate
	}
	r.keys[key] = struct{}{}
	return nil
}

func (r *memRecords) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

type memClasses map[string]models.ClassSchedule

func (c memClasses) FindClass(ctx context.Context, id string) (*models.ClassSchedule, error) {
	class, ok := c[id]
	if !ok {
		return nil, appErrors.ErrUnknownClass
	}
	return &class, nil
}

type fixedClock struct {
	period int
	ok     bool
}

func (f fixedClock) PeriodAt(time.Time) (int, bool) {
	return f.period, f.ok
}

type tokenTable map[string]models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &claims, nil
}

var testTokens = tokenTable{
	"faculty-f1": {UserID: "u-f1", Identifier: "F1", Role: models.RoleFaculty},
	"faculty-f2": {UserID: "u-f2", Identifier: "F2", Role: models.RoleFaculty},
	"student-s1": {UserID: "u-s1", Identifier: "S1", Role: models.RoleStudent},
	"student-s9": {UserID: "u-s9", Identifier: "S9", Role: models.RoleStudent},
	"admin":      {UserID: "u-a", Identifier: "A1", Role: models.RoleAdmin},
}

type engineFixture struct {
	manager *service.SessionManager
	hub     *Hub
	engine  *Engine
	server  *httptest.Server
	session *models.AttendanceSession
}

func newEngineFixture(t *testing.T, clock fixedClock, source PresenceSource) *engineFixture {
	t.Helper()
	classes := memClasses{
		"math-a": {ID: "math-a", FacultyID: "F1", Periods: models.PeriodSet{1, 2, 3}, Roster: []string{"S1", "S2"}},
	}
	manager := service.NewSessionManager(
		&memSessions{sessions: map[string]models.AttendanceSession{}},
		&memRecords{keys: map[string]struct{}{}},
		classes, nil, nil, nil, service.SessionManagerConfig{},
	)
	hub := NewHub(nil, nil)
	manager.SetNotifier(hub)
	engine := NewEngine(manager, clock, testTokens, hub, source, nil, nil, EngineConfig{SendBuffer: 16})
	server := httptest.NewServer(engine.Handler())
	t.Cleanup(func() {
		server.Close()
		engine.Close()
	})

	session, err := manager.StartSession(context.Background(), models.StartSessionRequest{
		ClassID: "math-a",
		Date:    "2024-03-04",
		Periods: []int{1, 2},
	})
	require.NoError(t, err)
	return &engineFixture{manager: manager, hub: hub, engine: engine, server: server, session: session}
}

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func (f *engineFixture) dial(t *testing.T, token string) *testConn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?token=" + token
	conn, err := websocket.Dial(wsURL, "", f.server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &testConn{t: t, conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}
}

func (c *testConn) send(requestID string, msg Message) {
	c.t.Helper()
	frame, err := Encode(requestID, msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.enc.Encode(frame))
}

func (c *testConn) sendRaw(frame Frame) {
	c.t.Helper()
	require.NoError(c.t, c.enc.Encode(frame))
}

func (c *testConn) next() (Frame, Message) {
	c.t.Helper()
	var frame Frame
	require.NoError(c.t, c.dec.Decode(&frame))
	msg, err := Decode(frame)
	require.NoError(c.t, err)
	return frame, msg
}
