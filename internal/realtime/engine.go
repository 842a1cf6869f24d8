package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

const maxDecodeErrorsPerConn = 5

type sessionEngine interface {
	ActiveForFaculty(facultyID string) (*models.AttendanceSession, error)
	FindForStudent(studentID string, period int) (*models.AttendanceSession, error)
	SetScanning(id string, on bool) error
	AddDiscovered(id string, device models.DiscoveredDevice) (bool, error)
	RecordPresence(ctx context.Context, req models.PresenceRequest) (*models.AttendanceRecord, error)
	Get(ctx context.Context, id string) (*models.AttendanceSession, error)
	Roster(id string) ([]string, error)
}

type periodClock interface {
	PeriodAt(t time.Time) (int, bool)
}

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// EngineConfig tunes the websocket endpoint.
type EngineConfig struct {
	SendBuffer     int
	AllowedOrigins []string
}

// Engine terminates presence websocket connections and turns frames into
// session manager calls.
type Engine struct {
	sessions sessionEngine
	periods  periodClock
	auth     tokenValidator
	hub      *Hub
	source   PresenceSource
	metrics  *service.MetricsService
	logger   *zap.Logger
	cfg      EngineConfig
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewEngine wires the engine. source may be nil when sightings only arrive over the socket.
func NewEngine(sessions sessionEngine, periods periodClock, auth tokenValidator, hub *Hub, source PresenceSource, metrics *service.MetricsService, logger *zap.Logger, cfg EngineConfig) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		sessions: sessions,
		periods:  periods,
		auth:     auth,
		hub:      hub,
		source:   source,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	if hub != nil && source != nil {
		// Stop and cancel can arrive over HTTP, so the source is not only stopped by scan_stop.
		hub.OnSessionClosed(source.Stop)
	}
	return e
}

// Close stops every presence source started by the engine and drops open connections.
func (e *Engine) Close() {
	e.cancel()
}

type principalKey struct{}

// Handler authenticates the upgrade request and serves the websocket.
func (e *Engine) Handler() http.Handler {
	server := websocket.Server{
		Handshake: e.handshake,
		Handler:   websocket.Handler(e.serve),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := tokenFromRequest(r)
		if token == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		claims, err := e.auth.ValidateToken(token)
		if err != nil {
			e.logger.Info("websocket unauthorized", zap.String("remote", r.RemoteAddr), zap.Error(err))
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, claims.Principal())
		server.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (e *Engine) handshake(cfg *websocket.Config, r *http.Request) error {
	origin := r.Header.Get("Origin")
	if origin == "" || len(e.cfg.AllowedOrigins) == 0 {
		return nil
	}
	for _, allowed := range e.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return nil
		}
	}
	return fmt.Errorf("origin %q not allowed", origin)
}

// connState is owned by the connection's read loop.
type connState struct {
	peer      *peer
	sessionID string
}

func (e *Engine) serve(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	stopClose := context.AfterFunc(e.baseCtx, func() { _ = conn.Close() })
	defer stopClose()
	principal, _ := conn.Request().Context().Value(principalKey{}).(models.Principal)
	p := newPeer(principal, e.cfg.SendBuffer)
	e.hub.register(p)
	defer e.hub.unregister(p)

	go p.writeLoop(json.NewEncoder(conn), func(f Frame) { e.metrics.ObserveFrame("out", f.Type) })

	log := e.logger.With(zap.String("peer", p.id), zap.String("role", string(principal.Role)), zap.String("identifier", principal.Identifier))
	log.Info("presence channel connected")
	defer log.Info("presence channel closed")

	st := &connState{peer: p}
	ctx := conn.Request().Context()
	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.As(err, &syntaxErr):
				// The stream cannot resynchronise after malformed JSON.
				e.replyError(p, "", appErrors.Clone(appErrors.ErrValidation, "malformed frame"))
				return
			case errors.As(err, &typeErr):
				decodeErrors++
				e.replyError(p, "", appErrors.Clone(appErrors.ErrValidation, "invalid frame payload"))
				if decodeErrors >= maxDecodeErrorsPerConn {
					return
				}
				continue
			default:
				return
			}
		}
		decodeErrors = 0
		e.metrics.ObserveFrame("in", frame.Type)

		msg, err := Decode(frame)
		if err != nil {
			e.replyError(p, frame.RequestID, appErrors.Clone(appErrors.ErrValidation, err.Error()))
			continue
		}
		e.dispatch(ctx, st, frame.RequestID, msg)
	}
}

func (e *Engine) dispatch(ctx context.Context, st *connState, requestID string, msg Message) {
	switch m := msg.(type) {
	case *ScanStart:
		e.handleScanStart(st, requestID, m)
	case *ScanStop:
		e.handleScanStop(st, requestID, m)
	case *DeviceDiscovered:
		e.handleDeviceDiscovered(ctx, st, requestID, m)
	case *AttendanceRequest:
		e.handleAttendanceRequest(ctx, st, requestID, m)
	case *Subscribe:
		e.handleSubscribe(ctx, st, requestID, m)
	default:
		e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s frames are sent by the server", msg.frameType())))
	}
}

func (e *Engine) reply(p *peer, requestID string, msg Message) {
	e.hub.sendTo(p, mustEncode(requestID, msg))
}

func (e *Engine) replyError(p *peer, requestID string, err error) {
	appErr := appErrors.FromError(err)
	e.reply(p, requestID, ErrorMessage{Code: appErr.Code, Message: appErr.Message})
}

// scanningFaculty resolves whose session a scan frame targets.
func scanningFaculty(principal models.Principal, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	switch principal.Role {
	case models.RoleFaculty:
		if requested != "" && requested != principal.Identifier {
			return "", appErrors.Clone(appErrors.ErrForbidden, "cannot scan for another faculty member")
		}
		return principal.Identifier, nil
	case models.RoleAdmin:
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "facultyId is required")
		}
		return requested, nil
	default:
		return "", appErrors.Clone(appErrors.ErrForbidden, "only faculty can scan")
	}
}

func (e *Engine) handleScanStart(st *connState, requestID string, m *ScanStart) {
	facultyID, err := scanningFaculty(st.peer.principal, m.FacultyID)
	if err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	session, err := e.sessions.ActiveForFaculty(facultyID)
	if err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	if err := e.sessions.SetScanning(session.ID, true); err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	e.hub.subscribe(st.peer, session.ID)
	st.sessionID = session.ID
	e.startSource(session.ID)
	e.reply(st.peer, requestID, ScanStarted{SessionID: session.ID, Message: "Scanning started"})
}

func (e *Engine) startSource(sessionID string) {
	if e.source == nil {
		return
	}
	roster, err := e.sessions.Roster(sessionID)
	if err != nil {
		e.logger.Warn("presence source not started", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	e.source.Start(e.baseCtx, sessionID, roster, func(d DeviceDiscovered) {
		if err := e.ingest(e.baseCtx, sessionID, d); err != nil {
			e.logger.Info("source sighting rejected",
				zap.String("session_id", sessionID),
				zap.String("device_id", d.DeviceID),
				zap.String("reason", appErrors.FromError(err).Code))
		}
	})
}

func (e *Engine) handleScanStop(st *connState, requestID string, m *ScanStop) {
	facultyID, err := scanningFaculty(st.peer.principal, m.FacultyID)
	if err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	session, err := e.sessions.ActiveForFaculty(facultyID)
	if err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	if e.source != nil {
		e.source.Stop(session.ID)
	}
	if err := e.sessions.SetScanning(session.ID, false); err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	e.reply(st.peer, requestID, ScanStopped{SessionID: session.ID, Message: "Scanning stopped"})
}

func (e *Engine) handleDeviceDiscovered(ctx context.Context, st *connState, requestID string, m *DeviceDiscovered) {
	principal := st.peer.principal
	if principal.Role == models.RoleStudent {
		e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "students cannot report sightings"))
		return
	}
	sessionID := strings.TrimSpace(m.SessionID)
	if sessionID == "" {
		sessionID = st.sessionID
	}
	if sessionID == "" {
		session, err := e.sessions.ActiveForFaculty(principal.Identifier)
		if err != nil {
			e.replyError(st.peer, requestID, err)
			return
		}
		sessionID = session.ID
	}
	if principal.Role == models.RoleFaculty && sessionID != st.sessionID {
		session, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			e.replyError(st.peer, requestID, err)
			return
		}
		if session.FacultyID != principal.Identifier {
			e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another faculty member"))
			return
		}
	}
	if err := e.ingest(ctx, sessionID, *m); err != nil {
		e.replyError(st.peer, requestID, err)
	}
}

// ingest stores a sighting and, when it names a student, records presence for
// the explicit period or the one in progress. Sightings made while the
// session is not scanning are dropped without error.
func (e *Engine) ingest(ctx context.Context, sessionID string, d DeviceDiscovered) error {
	deviceID := strings.TrimSpace(d.DeviceID)
	if deviceID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "deviceId is required")
	}
	device := models.DiscoveredDevice{
		DeviceID:   deviceID,
		DeviceName: d.DeviceName,
		Signal:     d.Signal,
		StudentID:  d.StudentID,
	}
	accepted, err := e.sessions.AddDiscovered(sessionID, device)
	if err != nil || !accepted {
		return err
	}
	if d.StudentID == nil || strings.TrimSpace(*d.StudentID) == "" {
		return nil
	}

	var period int
	if d.Period != nil {
		period = *d.Period
	} else {
		current, ok := e.periods.PeriodAt(e.now())
		if !ok {
			return appErrors.Clone(appErrors.ErrPeriodNotInSession, "no period is in progress")
		}
		period = current
	}
	signal := d.Signal
	_, err = e.sessions.RecordPresence(ctx, models.PresenceRequest{
		SessionID: sessionID,
		StudentID: strings.TrimSpace(*d.StudentID),
		Period:    period,
		Method:    models.MethodProximity,
		DeviceID:  &deviceID,
		Signal:    &signal,
	})
	return err
}

func (e *Engine) handleAttendanceRequest(ctx context.Context, st *connState, requestID string, m *AttendanceRequest) {
	principal := st.peer.principal
	studentID := strings.TrimSpace(m.StudentID)
	switch principal.Role {
	case models.RoleStudent:
		if studentID != "" && studentID != principal.Identifier {
			e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "students can only mark themselves"))
			return
		}
		studentID = principal.Identifier
	case models.RoleAdmin:
		if studentID == "" {
			e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
			return
		}
	default:
		e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "attendance requests come from students"))
		return
	}

	period, ok := e.periods.PeriodAt(e.now())
	if !ok {
		e.reply(st.peer, requestID, AttendanceResult{Success: false, Message: "no active session"})
		return
	}
	session, err := e.sessions.FindForStudent(studentID, period)
	if err != nil {
		e.reply(st.peer, requestID, AttendanceResult{Success: false, Message: "no active session"})
		return
	}
	req := models.PresenceRequest{
		SessionID: session.ID,
		StudentID: studentID,
		Period:    period,
		Method:    models.MethodProximity,
		Signal:    m.Signal,
	}
	if deviceID := strings.TrimSpace(m.DeviceID); deviceID != "" {
		req.DeviceID = &deviceID
	}
	result := AttendanceResult{SessionID: session.ID, Period: &period}
	if _, err := e.sessions.RecordPresence(ctx, req); err != nil {
		result.Message = appErrors.FromError(err).Message
	} else {
		result.Success = true
		result.Message = "attendance marked"
	}
	e.reply(st.peer, requestID, result)
}

func (e *Engine) handleSubscribe(ctx context.Context, st *connState, requestID string, m *Subscribe) {
	principal := st.peer.principal
	if principal.Role == models.RoleStudent {
		e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "students cannot observe sessions"))
		return
	}
	session, err := e.sessions.Get(ctx, strings.TrimSpace(m.SessionID))
	if err != nil {
		e.replyError(st.peer, requestID, err)
		return
	}
	if principal.Role == models.RoleFaculty && session.FacultyID != principal.Identifier {
		e.replyError(st.peer, requestID, appErrors.Clone(appErrors.ErrForbidden, "session belongs to another faculty member"))
		return
	}
	e.hub.subscribe(st.peer, session.ID)
	e.reply(st.peer, requestID, Subscribed{SessionID: session.ID})
}
