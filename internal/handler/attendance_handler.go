package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/response"
)

const maxImportBytes = 16 << 20

type attendanceService interface {
	Query(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error)
	Export(ctx context.Context, filter models.AttendanceFilter, format service.ExportFormat) (*service.ExportFile, error)
	Import(ctx context.Context, r io.Reader) (*models.ImportResult, error)
}

// AttendanceHandler exposes the attendance store for reporting.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

func filterFromQuery(c *gin.Context) (models.AttendanceFilter, error) {
	filter := models.AttendanceFilter{
		SessionID: strings.TrimSpace(c.Query("session_id")),
		ClassID:   strings.TrimSpace(c.Query("class_id")),
		StudentID: strings.TrimSpace(c.Query("student_id")),
		DateFrom:  strings.TrimSpace(c.Query("from")),
		DateTo:    strings.TrimSpace(c.Query("to")),
	}
	period, err := optionalInt(c, "period")
	if err != nil {
		return filter, err
	}
	filter.Period = period
	if raw := strings.TrimSpace(c.Query("method")); raw != "" {
		method := models.AttendanceMethod(strings.ToLower(raw))
		if !method.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, "method must be proximity or manual")
		}
		filter.Method = &method
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "100")); err == nil {
		filter.PageSize = size
	}
	return filter, nil
}

// List godoc
// @Summary Query attendance records
// @Tags Attendance
// @Produce json
// @Param session_id query string false "Session"
// @Param class_id query string false "Class"
// @Param student_id query string false "Student"
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Param period query int false "Period"
// @Param method query string false "proximity or manual"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.list(c, filter)
}

// Student godoc
// @Summary A student's own attendance
// @Tags Attendance
// @Produce json
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *AttendanceHandler) Student(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.StudentID = c.Param("id")
	h.list(c, filter)
}

func (h *AttendanceHandler) list(c *gin.Context, filter models.AttendanceFilter) {
	records, pagination, err := h.service.Query(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Export godoc
// @Summary Export attendance records
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /attendance/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.Export(c.Request.Context(), filter, service.ExportFormat(c.DefaultQuery("format", "csv")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// Import godoc
// @Summary Import attendance records from CSV
// @Description Accepts a multipart "file" field or a raw text/csv body. Existing records are never overwritten.
// @Tags Attendance
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/import [post]
func (h *AttendanceHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			response.Error(c, appErrors.ErrValidation.Because(err, "file field is required"))
			return
		}
		f, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.ErrValidation.Because(err, "unreadable upload"))
			return
		}
		defer f.Close()
		body = f
	}
	result, err := h.service.Import(c.Request.Context(), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
