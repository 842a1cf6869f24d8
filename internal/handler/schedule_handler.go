package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presence-api/internal/models"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/response"
)

type registryService interface {
	ScheduleFor(ctx context.Context, key models.SectionKey) ([]models.DaySchedule, error)
	ClassesOwnedBy(ctx context.Context, facultyID string) ([]models.ClassSchedule, error)
	FindClass(ctx context.Context, classID string) (*models.ClassSchedule, error)
	RosterOf(ctx context.Context, classID string) ([]string, error)
	ReplaceSection(ctx context.Context, req models.ReplaceSectionRequest) ([]models.DaySchedule, error)
	ArchiveSection(ctx context.Context, key models.SectionKey) (int64, error)
}

// ScheduleHandler exposes the class registry.
type ScheduleHandler struct {
	service registryService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc registryService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

func sectionFromQuery(c *gin.Context) (models.SectionKey, error) {
	year, err := strconv.Atoi(strings.TrimSpace(c.Query("year")))
	if err != nil {
		return models.SectionKey{}, appErrors.Clone(appErrors.ErrValidation, "year must be a number")
	}
	return models.SectionKey{
		Branch:  strings.TrimSpace(c.Query("branch")),
		Year:    year,
		Section: strings.TrimSpace(c.Query("section")),
	}, nil
}

// Section godoc
// @Summary Weekly schedule of a section
// @Tags Schedules
// @Produce json
// @Param branch query string true "Branch"
// @Param year query int true "Year"
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) Section(c *gin.Context) {
	key, err := sectionFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	days, err := h.service.ScheduleFor(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// Replace godoc
// @Summary Replace a section's schedule
// @Description Installs the new class set atomically; the old set stays intact on failure.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body models.ReplaceSectionRequest true "Section schedule"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules [put]
func (h *ScheduleHandler) Replace(c *gin.Context) {
	var req models.ReplaceSectionRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	days, err := h.service.ReplaceSection(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, days)
}

// Archive godoc
// @Summary Archive a section's classes at term end
// @Tags Schedules
// @Produce json
// @Param branch query string true "Branch"
// @Param year query int true "Year"
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Router /schedules [delete]
func (h *ScheduleHandler) Archive(c *gin.Context) {
	key, err := sectionFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	n, err := h.service.ArchiveSection(c.Request.Context(), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"archived": n})
}

// FacultyClasses godoc
// @Summary Classes taught by a faculty member
// @Tags Schedules
// @Produce json
// @Param id path string true "Faculty identifier"
// @Success 200 {object} response.Envelope
// @Router /faculty/{id}/classes [get]
func (h *ScheduleHandler) FacultyClasses(c *gin.Context) {
	classes, err := h.service.ClassesOwnedBy(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, classes)
}

// Class godoc
// @Summary One class with its roster
// @Tags Schedules
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ScheduleHandler) Class(c *gin.Context) {
	class, err := h.service.FindClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Roster godoc
// @Summary Students enrolled in a class
// @Tags Schedules
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/roster [get]
func (h *ScheduleHandler) Roster(c *gin.Context) {
	roster, err := h.service.RosterOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, roster)
}
