package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presence-api/internal/models"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/response"
)

type sessionService interface {
	StartSession(ctx context.Context, req models.StartSessionRequest) (*models.AttendanceSession, error)
	StopSession(ctx context.Context, id string) (*models.AttendanceSession, error)
	CancelSession(ctx context.Context, id string) (*models.AttendanceSession, error)
	MarkManual(ctx context.Context, sessionID, studentID string, period int) (*models.AttendanceRecord, error)
	Get(ctx context.Context, id string) (*models.AttendanceSession, error)
	ListActive() []models.AttendanceSession
	Discovered(id string) ([]models.DiscoveredDevice, error)
	Archive(id string) error
}

type classFinder interface {
	FindClass(ctx context.Context, classID string) (*models.ClassSchedule, error)
}

// SessionHandler drives attendance sessions over HTTP. Faculty members act
// only on their own classes and sessions; admins act on any.
type SessionHandler struct {
	sessions sessionService
	classes  classFinder
}

// NewSessionHandler builds the handler.
func NewSessionHandler(sessions sessionService, classes classFinder) *SessionHandler {
	return &SessionHandler{sessions: sessions, classes: classes}
}

// ManualMarkRequest marks a student present without a proximity sighting.
type ManualMarkRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Period    int    `json:"period" binding:"required,min=1"`
}

var errNotSessionOwner = appErrors.Clone(appErrors.ErrForbidden, "session belongs to another faculty member")

// owned loads a session and checks the caller may act on it.
func (h *SessionHandler) owned(c *gin.Context) (*models.AttendanceSession, bool) {
	claims := requireClaims(c)
	if claims == nil {
		return nil, false
	}
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if claims.Role != models.RoleAdmin && session.FacultyID != claims.Identifier {
		response.Error(c, errNotSessionOwner)
		return nil, false
	}
	return session, true
}

// Start godoc
// @Summary Start an attendance session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body models.StartSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	var req models.StartSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	if claims.Role == models.RoleFaculty {
		class, err := h.classes.FindClass(c.Request.Context(), strings.TrimSpace(req.ClassID))
		if err != nil {
			response.Error(c, err)
			return
		}
		if class.FacultyID != claims.Identifier {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "class is taught by another faculty member"))
			return
		}
		req.FacultyID = claims.Identifier
	}
	session, err := h.sessions.StartSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary Active sessions
// @Description Faculty members see their own sessions only.
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	active := h.sessions.ListActive()
	if claims.Role != models.RoleAdmin {
		mine := make([]models.AttendanceSession, 0, len(active))
		for _, s := range active {
			if s.FacultyID == claims.Identifier {
				mine = append(mine, s)
			}
		}
		active = mine
	}
	response.OK(c, active)
}

// Get godoc
// @Summary One session with its records
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, ok := h.owned(c)
	if !ok {
		return
	}
	response.OK(c, session)
}

// Stop godoc
// @Summary Complete a session
// @Description Stopping an already finished session is a no-op.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/stop [post]
func (h *SessionHandler) Stop(c *gin.Context) {
	if _, ok := h.owned(c); !ok {
		return
	}
	session, err := h.sessions.StopSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Cancel godoc
// @Summary Cancel a session
// @Description Records already written are kept.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	if _, ok := h.owned(c); !ok {
		return
	}
	session, err := h.sessions.CancelSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, session)
}

// Mark godoc
// @Summary Mark a student present manually
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body ManualMarkRequest true "Student and period"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/attendance [post]
func (h *SessionHandler) Mark(c *gin.Context) {
	session, ok := h.owned(c)
	if !ok {
		return
	}
	var req ManualMarkRequest
	if !bindJSON(c, &req, "invalid attendance payload") {
		return
	}
	record, err := h.sessions.MarkManual(c.Request.Context(), session.ID, strings.TrimSpace(req.StudentID), req.Period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Devices godoc
// @Summary Devices sighted during a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/devices [get]
func (h *SessionHandler) Devices(c *gin.Context) {
	session, ok := h.owned(c)
	if !ok {
		return
	}
	devices, err := h.sessions.Discovered(session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, devices)
}

// Archive godoc
// @Summary Drop a finished session from memory
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Archive(c *gin.Context) {
	if err := h.sessions.Archive(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
