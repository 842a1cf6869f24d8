package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type sessionStore interface {
	Create(ctx context.Context, session *models.AttendanceSession) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, endedAt time.Time) error
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.AttendanceSession, error)
}

type recordStore interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error)
}

type classLookup interface {
	FindClass(ctx context.Context, classID string) (*models.ClassSchedule, error)
}

// SessionNotifier receives session events. Implementations must not block.
type SessionNotifier interface {
	Notify(event models.SessionEvent)
}

// SessionManagerConfig tunes presence validation.
type SessionManagerConfig struct {
	SignalThresholdEnabled bool
	SignalThreshold        int
}

type markKey struct {
	studentID string
	period    int
}

// liveSession is the in-memory state of one session. Every field is guarded by mu.
type liveSession struct {
	mu         sync.Mutex
	session    models.AttendanceSession
	roster     map[string]struct{}
	marked     map[markKey]struct{}
	discovered map[string]models.DiscoveredDevice
	seenOrder  []string
}

func newLiveSession(session models.AttendanceSession, roster []string) *liveSession {
	ls := &liveSession{
		session:    session,
		roster:     make(map[string]struct{}, len(roster)),
		marked:     make(map[markKey]struct{}),
		discovered: make(map[string]models.DiscoveredDevice),
	}
	for _, id := range roster {
		ls.roster[id] = struct{}{}
	}
	if ls.session.Records == nil {
		ls.session.Records = []models.AttendanceRecord{}
	}
	for _, rec := range ls.session.Records {
		ls.marked[markKey{rec.StudentID, rec.Period}] = struct{}{}
	}
	return ls
}

func (ls *liveSession) snapshot() models.AttendanceSession {
	out := ls.session
	out.Periods = append(models.PeriodSet(nil), ls.session.Periods...)
	out.Records = append([]models.AttendanceRecord(nil), ls.session.Records...)
	if out.Records == nil {
		out.Records = []models.AttendanceRecord{}
	}
	if ls.session.EndedAt != nil {
		ended := *ls.session.EndedAt
		out.EndedAt = &ended
	}
	return out
}

func (ls *liveSession) enrolled(studentID string) bool {
	_, ok := ls.roster[studentID]
	return ok
}

// SessionManager owns the process-wide session registry. Transport code reaches
// sessions only through its methods; each session is serialized by its own
// mutex and the registry lock is held only for map access.
type SessionManager struct {
	sessions  sessionStore
	records   recordStore
	classes   classLookup
	metrics   *MetricsService
	logger    *zap.Logger
	validator *validator.Validate
	config    SessionManagerConfig
	now       func() time.Time

	mu       sync.RWMutex
	live     map[string]*liveSession
	active   map[string]string
	notifier SessionNotifier
}

// NewSessionManager wires the session manager.
func NewSessionManager(sessions sessionStore, records recordStore, classes classLookup, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionManagerConfig) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionManager{
		sessions:  sessions,
		records:   records,
		classes:   classes,
		metrics:   metrics,
		logger:    logger,
		validator: validate,
		config:    cfg,
		now:       time.Now,
		live:      make(map[string]*liveSession),
		active:    make(map[string]string),
	}
}

// SetNotifier installs the event sink. Passing nil silences events.
func (m *SessionManager) SetNotifier(n SessionNotifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

func (m *SessionManager) notify(events ...models.SessionEvent) {
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()
	if n == nil {
		return
	}
	for _, ev := range events {
		n.Notify(ev)
	}
}

func activeKey(classID, date string) string {
	return classID + "|" + date
}

func (m *SessionManager) lookup(id string) *liveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live[id]
}

func (m *SessionManager) activeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// StartSession opens a session for a class, date and subset of its periods.
func (m *SessionManager) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.AttendanceSession, error) {
	if err := m.validator.Struct(req); err != nil {
		return nil, appErrors.ErrValidation.Because(err, "invalid session payload")
	}
	class, err := m.classes.FindClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if err := checkSessionPeriods(req.Periods, class.Periods); err != nil {
		return nil, err
	}
	facultyID := req.FacultyID
	if facultyID == "" {
		facultyID = class.FacultyID
	}

	key := activeKey(class.ID, req.Date)
	m.mu.Lock()
	if _, taken := m.active[key]; taken {
		m.mu.Unlock()
		return nil, appErrors.ErrSessionAlreadyActive
	}
	m.active[key] = ""
	m.mu.Unlock()

	session := models.AttendanceSession{
		ID:        uuid.NewString(),
		ClassID:   class.ID,
		Date:      req.Date,
		Periods:   models.PeriodSet(req.Periods).Sorted(),
		FacultyID: facultyID,
		Status:    models.SessionStatusActive,
		StartedAt: m.now().UTC(),
		Records:   []models.AttendanceRecord{},
	}
	if err := m.sessions.Create(ctx, &session); err != nil {
		m.mu.Lock()
		delete(m.active, key)
		m.mu.Unlock()
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrSessionAlreadyActive
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to persist session")
	}

	ls := newLiveSession(session, class.Roster)
	m.mu.Lock()
	m.live[session.ID] = ls
	m.active[key] = session.ID
	count := len(m.active)
	m.mu.Unlock()

	m.metrics.ObserveSessionTransition(string(models.SessionStatusActive), count)
	m.logger.Info("attendance session started",
		zap.String("session_id", session.ID),
		zap.String("class_id", session.ClassID),
		zap.String("date", session.Date),
		zap.Ints("periods", session.Periods))

	ls.mu.Lock()
	out := ls.snapshot()
	ls.mu.Unlock()
	return &out, nil
}

func checkSessionPeriods(requested []int, classPeriods models.PeriodSet) error {
	if len(requested) == 0 {
		return appErrors.Clone(appErrors.ErrInvalidPeriods, "at least one period is required")
	}
	seen := make(map[int]struct{}, len(requested))
	for _, p := range requested {
		if _, dup := seen[p]; dup {
			return appErrors.Clone(appErrors.ErrInvalidPeriods, fmt.Sprintf("period %d listed more than once", p))
		}
		seen[p] = struct{}{}
		if !classPeriods.Contains(p) {
			return appErrors.Clone(appErrors.ErrInvalidPeriods, fmt.Sprintf("period %d is not a period of this class", p))
		}
	}
	return nil
}

// RecordPresence marks a student present in a live session. The rejection
// order is session, enrolment, period, signal, then duplicate.
func (m *SessionManager) RecordPresence(ctx context.Context, req models.PresenceRequest) (*models.AttendanceRecord, error) {
	if err := m.validator.Struct(req); err != nil {
		m.metrics.ObservePresence(string(req.Method), appErrors.ErrValidation.Code)
		return nil, appErrors.ErrValidation.Because(err, "invalid presence payload")
	}
	record, event, err := m.record(ctx, req)
	if err != nil {
		appErr := appErrors.FromError(err)
		m.metrics.ObservePresence(string(req.Method), appErr.Code)
		if appErr.Status >= 500 {
			m.logger.Error("presence not recorded", zap.String("session_id", req.SessionID), zap.String("student_id", req.StudentID), zap.Error(err))
		} else {
			m.logger.Info("presence rejected",
				zap.String("session_id", req.SessionID),
				zap.String("student_id", req.StudentID),
				zap.Int("period", req.Period),
				zap.String("reason", appErr.Code))
		}
		return nil, err
	}
	m.metrics.ObservePresence(string(req.Method), "recorded")
	m.notify(event)
	return record, nil
}

// MarkManual records presence on behalf of a student. Proximity checks do not apply.
func (m *SessionManager) MarkManual(ctx context.Context, sessionID, studentID string, period int) (*models.AttendanceRecord, error) {
	return m.RecordPresence(ctx, models.PresenceRequest{
		SessionID: sessionID,
		StudentID: studentID,
		Period:    period,
		Method:    models.MethodManual,
	})
}

func (m *SessionManager) record(ctx context.Context, req models.PresenceRequest) (*models.AttendanceRecord, models.SessionEvent, error) {
	ls := m.lookup(req.SessionID)
	if ls == nil {
		return nil, models.SessionEvent{}, m.notLive(ctx, req.SessionID)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	s := &ls.session
	if s.Status != models.SessionStatusActive {
		return nil, models.SessionEvent{}, appErrors.ErrSessionNotActive
	}
	if !ls.enrolled(req.StudentID) {
		return nil, models.SessionEvent{}, appErrors.Clone(appErrors.ErrStudentNotEnrolled,
			fmt.Sprintf("student %s is not enrolled in this class", req.StudentID))
	}
	if !s.Periods.Contains(req.Period) {
		return nil, models.SessionEvent{}, appErrors.Clone(appErrors.ErrPeriodNotInSession,
			fmt.Sprintf("period %d is not covered by this session", req.Period))
	}
	if req.Method == models.MethodProximity && m.config.SignalThresholdEnabled && req.Signal != nil && *req.Signal < m.config.SignalThreshold {
		return nil, models.SessionEvent{}, appErrors.Clone(appErrors.ErrSignalTooWeak,
			fmt.Sprintf("signal %d dBm is below the %d dBm threshold", *req.Signal, m.config.SignalThreshold))
	}
	key := markKey{req.StudentID, req.Period}
	if _, done := ls.marked[key]; done {
		return nil, models.SessionEvent{}, duplicateAttendance(req.StudentID, s.Date, req.Period)
	}

	sessionID := s.ID
	record := models.AttendanceRecord{
		ID:         uuid.NewString(),
		SessionID:  &sessionID,
		ClassID:    s.ClassID,
		StudentID:  req.StudentID,
		Date:       s.Date,
		Period:     req.Period,
		Status:     models.AttendanceStatusPresent,
		Method:     req.Method,
		DeviceID:   req.DeviceID,
		Signal:     req.Signal,
		RecordedAt: m.now().UTC(),
	}
	if err := m.records.Insert(ctx, &record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			ls.marked[key] = struct{}{}
			return nil, models.SessionEvent{}, duplicateAttendance(req.StudentID, s.Date, req.Period)
		}
		return nil, models.SessionEvent{}, appErrors.ErrInternal.Because(err, "failed to store attendance record")
	}
	ls.marked[key] = struct{}{}
	s.Records = append(s.Records, record)

	event := models.SessionEvent{
		Kind:      models.EventAttendanceMarked,
		SessionID: s.ID,
		StudentID: record.StudentID,
		Period:    record.Period,
		Signal:    record.Signal,
		At:        record.RecordedAt,
	}
	if record.DeviceID != nil {
		event.DeviceID = *record.DeviceID
	}
	return &record, event, nil
}

func duplicateAttendance(studentID, date string, period int) error {
	return appErrors.Clone(appErrors.ErrDuplicateAttendance,
		fmt.Sprintf("student %s already has a record for period %d on %s", studentID, period, date))
}

// StopSession completes an active session. Stopping a session that already
// ended returns it unchanged.
func (m *SessionManager) StopSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	ls := m.lookup(id)
	if ls == nil {
		return m.endedFromStore(ctx, id, models.SessionStatusCompleted)
	}
	return m.finish(ctx, ls, models.SessionStatusCompleted)
}

// CancelSession aborts an active session. Written records stay; discovery
// state is dropped. Cancelling a completed session is rejected.
func (m *SessionManager) CancelSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	ls := m.lookup(id)
	if ls == nil {
		return m.endedFromStore(ctx, id, models.SessionStatusCancelled)
	}
	return m.finish(ctx, ls, models.SessionStatusCancelled)
}

func (m *SessionManager) finish(ctx context.Context, ls *liveSession, target models.SessionStatus) (*models.AttendanceSession, error) {
	ls.mu.Lock()
	s := &ls.session
	if s.Status.Terminal() {
		if target == models.SessionStatusCancelled && s.Status == models.SessionStatusCompleted {
			ls.mu.Unlock()
			return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "session already completed")
		}
		out := ls.snapshot()
		ls.mu.Unlock()
		return &out, nil
	}

	endedAt := m.now().UTC()
	if err := m.sessions.UpdateStatus(ctx, s.ID, target, endedAt); err != nil {
		ls.mu.Unlock()
		return nil, appErrors.ErrInternal.Because(err, "failed to update session status")
	}
	wasScanning := s.Scanning
	s.Status = target
	s.EndedAt = &endedAt
	s.Scanning = false
	if target == models.SessionStatusCancelled {
		ls.discovered = make(map[string]models.DiscoveredDevice)
		ls.seenOrder = nil
	}
	out := ls.snapshot()
	ls.mu.Unlock()

	m.mu.Lock()
	key := activeKey(out.ClassID, out.Date)
	if m.active[key] == out.ID {
		delete(m.active, key)
	}
	count := len(m.active)
	m.mu.Unlock()

	m.metrics.ObserveSessionTransition(string(target), count)
	m.logger.Info("attendance session ended",
		zap.String("session_id", out.ID),
		zap.String("status", string(target)),
		zap.Int("records", len(out.Records)))

	events := make([]models.SessionEvent, 0, 2)
	if wasScanning {
		events = append(events, models.SessionEvent{Kind: models.EventScanStopped, SessionID: out.ID, Message: "Scanning stopped", At: endedAt})
	}
	events = append(events, models.SessionEvent{Kind: models.EventSessionClosed, SessionID: out.ID, Status: target, At: endedAt})
	m.notify(events...)
	return &out, nil
}

// endedFromStore serves stop and cancel for sessions no longer held in memory.
func (m *SessionManager) endedFromStore(ctx context.Context, id string, target models.SessionStatus) (*models.AttendanceSession, error) {
	stored, err := m.fromStore(ctx, id)
	if err != nil {
		return nil, err
	}
	if !stored.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrSessionNotFound, "session is active on another node")
	}
	if target == models.SessionStatusCancelled && stored.Status == models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrSessionNotActive, "session already completed")
	}
	return stored, nil
}

// notLive explains why a session missing from memory cannot take presence.
// Archived and pre-restart sessions that ended are reported as not active.
func (m *SessionManager) notLive(ctx context.Context, id string) error {
	stored, err := m.sessions.FindByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrSessionNotFound
	case err != nil:
		return appErrors.ErrInternal.Because(err, "failed to load session")
	case stored.Status.Terminal():
		return appErrors.Clone(appErrors.ErrSessionNotActive, "session is "+string(stored.Status))
	default:
		return appErrors.Clone(appErrors.ErrSessionNotFound, "session is active on another node")
	}
}

func (m *SessionManager) fromStore(ctx context.Context, id string) (*models.AttendanceSession, error) {
	session, err := m.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to load session")
	}
	records, err := m.records.ListBySession(ctx, id)
	if err != nil {
		return nil, appErrors.ErrInternal.Because(err, "failed to load session records")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	session.Records = records
	return session, nil
}

// SetScanning toggles discovery for an active session.
func (m *SessionManager) SetScanning(id string, on bool) error {
	ls := m.lookup(id)
	if ls == nil {
		return appErrors.ErrSessionNotFound
	}
	ls.mu.Lock()
	if ls.session.Status != models.SessionStatusActive {
		ls.mu.Unlock()
		return appErrors.ErrSessionNotActive
	}
	changed := ls.session.Scanning != on
	ls.session.Scanning = on
	ls.mu.Unlock()

	if !changed {
		return nil
	}
	event := models.SessionEvent{Kind: models.EventScanStopped, SessionID: id, Message: "Scanning stopped", At: m.now().UTC()}
	if on {
		event.Kind = models.EventScanStarted
		event.Message = "Scanning started"
	}
	m.notify(event)
	return nil
}

// AddDiscovered stores a sighting. It reports false when the session is not
// scanning, in which case the sighting is dropped.
func (m *SessionManager) AddDiscovered(id string, device models.DiscoveredDevice) (bool, error) {
	ls := m.lookup(id)
	if ls == nil {
		return false, appErrors.ErrSessionNotFound
	}
	ls.mu.Lock()
	if ls.session.Status != models.SessionStatusActive {
		ls.mu.Unlock()
		return false, appErrors.ErrSessionNotActive
	}
	if !ls.session.Scanning {
		ls.mu.Unlock()
		return false, nil
	}
	if device.DiscoveredAt.IsZero() {
		device.DiscoveredAt = m.now().UTC()
	}
	if _, seen := ls.discovered[device.DeviceID]; !seen {
		ls.seenOrder = append(ls.seenOrder, device.DeviceID)
	}
	ls.discovered[device.DeviceID] = device
	ls.mu.Unlock()

	signal := device.Signal
	event := models.SessionEvent{
		Kind:       models.EventDeviceSeen,
		SessionID:  id,
		DeviceID:   device.DeviceID,
		DeviceName: device.DeviceName,
		Signal:     &signal,
		At:         device.DiscoveredAt,
	}
	if device.StudentID != nil {
		event.StudentID = *device.StudentID
	}
	m.notify(event)
	return true, nil
}

// Discovered lists the sightings of a session in first-seen order.
func (m *SessionManager) Discovered(id string) ([]models.DiscoveredDevice, error) {
	ls := m.lookup(id)
	if ls == nil {
		return nil, appErrors.ErrSessionNotFound
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	out := make([]models.DiscoveredDevice, 0, len(ls.seenOrder))
	for _, deviceID := range ls.seenOrder {
		out = append(out, ls.discovered[deviceID])
	}
	return out, nil
}

// Get returns a copy of a session. Sessions no longer held in memory are read from the store.
func (m *SessionManager) Get(ctx context.Context, id string) (*models.AttendanceSession, error) {
	ls := m.lookup(id)
	if ls == nil {
		return m.fromStore(ctx, id)
	}
	ls.mu.Lock()
	out := ls.snapshot()
	ls.mu.Unlock()
	return &out, nil
}

// Roster returns the sorted roster snapshot taken when the session started.
func (m *SessionManager) Roster(id string) ([]string, error) {
	ls := m.lookup(id)
	if ls == nil {
		return nil, appErrors.ErrSessionNotFound
	}
	ls.mu.Lock()
	out := make([]string, 0, len(ls.roster))
	for studentID := range ls.roster {
		out = append(out, studentID)
	}
	ls.mu.Unlock()
	sort.Strings(out)
	return out, nil
}

func (m *SessionManager) liveSessions() []*liveSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*liveSession, 0, len(m.live))
	for _, ls := range m.live {
		out = append(out, ls)
	}
	return out
}

// ListActive returns the active sessions, oldest first.
func (m *SessionManager) ListActive() []models.AttendanceSession {
	out := make([]models.AttendanceSession, 0)
	for _, ls := range m.liveSessions() {
		ls.mu.Lock()
		if ls.session.Status == models.SessionStatusActive {
			out = append(out, ls.snapshot())
		}
		ls.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// ActiveForFaculty returns the most recently started active session owned by facultyID.
func (m *SessionManager) ActiveForFaculty(facultyID string) (*models.AttendanceSession, error) {
	var found *models.AttendanceSession
	for _, s := range m.ListActive() {
		if s.FacultyID == facultyID {
			s := s
			found = &s
		}
	}
	if found == nil {
		return nil, appErrors.Clone(appErrors.ErrNoActiveSession, "no active session for this faculty member")
	}
	return found, nil
}

// FindForStudent returns the active session whose roster holds studentID and
// whose periods include period.
func (m *SessionManager) FindForStudent(studentID string, period int) (*models.AttendanceSession, error) {
	var found *models.AttendanceSession
	for _, ls := range m.liveSessions() {
		ls.mu.Lock()
		if ls.session.Status == models.SessionStatusActive && ls.enrolled(studentID) && ls.session.Periods.Contains(period) {
			snap := ls.snapshot()
			if found == nil || snap.StartedAt.Before(found.StartedAt) {
				found = &snap
			}
		}
		ls.mu.Unlock()
	}
	if found == nil {
		return nil, appErrors.ErrNoActiveSession
	}
	return found, nil
}

// Archive drops a completed or cancelled session from the registry.
func (m *SessionManager) Archive(id string) error {
	ls := m.lookup(id)
	if ls == nil {
		return appErrors.ErrSessionNotFound
	}
	ls.mu.Lock()
	terminal := ls.session.Status.Terminal()
	ls.mu.Unlock()
	if !terminal {
		return appErrors.Clone(appErrors.ErrConflict, "only completed or cancelled sessions can be archived")
	}
	m.mu.Lock()
	delete(m.live, id)
	m.mu.Unlock()
	return nil
}

// ArchiveTerminated drops every terminal session that ended before now-olderThan.
func (m *SessionManager) ArchiveTerminated(olderThan time.Duration) int {
	cutoff := m.now().UTC().Add(-olderThan)
	var expired []string
	for _, ls := range m.liveSessions() {
		ls.mu.Lock()
		s := ls.session
		if s.Status.Terminal() && s.EndedAt != nil && !s.EndedAt.After(cutoff) {
			expired = append(expired, s.ID)
		}
		ls.mu.Unlock()
	}
	if len(expired) == 0 {
		return 0
	}
	m.mu.Lock()
	for _, id := range expired {
		delete(m.live, id)
	}
	m.mu.Unlock()
	return len(expired)
}

// Restore reloads sessions left active by a previous process. Sessions whose
// class no longer resolves are cancelled in the store.
func (m *SessionManager) Restore(ctx context.Context) (int, error) {
	stored, err := m.sessions.ListByStatus(ctx, models.SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	restored := 0
	for _, session := range stored {
		class, err := m.classes.FindClass(ctx, session.ClassID)
		if err != nil {
			if errors.Is(err, appErrors.ErrUnknownClass) {
				if err := m.sessions.UpdateStatus(ctx, session.ID, models.SessionStatusCancelled, m.now().UTC()); err != nil {
					return restored, fmt.Errorf("cancel orphaned session %s: %w", session.ID, err)
				}
				m.logger.Warn("orphaned session cancelled", zap.String("session_id", session.ID), zap.String("class_id", session.ClassID))
				continue
			}
			return restored, fmt.Errorf("resolve class for session %s: %w", session.ID, err)
		}
		records, err := m.records.ListBySession(ctx, session.ID)
		if err != nil {
			return restored, fmt.Errorf("load records for session %s: %w", session.ID, err)
		}
		session.Records = records
		ls := newLiveSession(session, class.Roster)

		m.mu.Lock()
		m.live[session.ID] = ls
		m.active[activeKey(session.ClassID, session.Date)] = session.ID
		m.mu.Unlock()
		restored++
	}
	if restored > 0 {
		m.metrics.ObserveSessionTransition(string(models.SessionStatusActive), m.activeCount())
		m.logger.Info("active sessions restored", zap.Int("count", restored))
	}
	return restored, nil
}

// Shutdown empties the registry. Persisted state is untouched.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	m.live = make(map[string]*liveSession)
	m.active = make(map[string]string)
	m.mu.Unlock()
}
