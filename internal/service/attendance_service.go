package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/export"
)

type attendanceRepository interface {
	Insert(ctx context.Context, record *models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
}

// ExportFormat enumerates supported attendance export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"

	exportPageSize = 1000
)

// ExportFile is a rendered attendance report.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

var recordHeaders = []string{"id", "session_id", "class_id", "student_id", "date", "period", "status", "method", "device_id", "signal", "recorded_at"}

// AttendanceService is the read side of the attendance store plus bulk
// export and import. Imports go through the same unique insert as live marks.
type AttendanceService struct {
	repo    attendanceRepository
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, metrics *MetricsService, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		repo:    repo,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Query returns one page of records matching the filter.
func (s *AttendanceService) Query(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	if err := checkDateFilter(filter); err != nil {
		return nil, nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > exportPageSize {
		filter.PageSize = 100
	}
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.ErrInternal.Because(err, "failed to query attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func checkDateFilter(filter models.AttendanceFilter) error {
	for _, raw := range []string{filter.DateFrom, filter.DateTo} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, raw); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("date %q must use YYYY-MM-DD", raw))
		}
	}
	return nil
}

// All collects every record matching the filter across pages.
func (s *AttendanceService) All(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	if err := checkDateFilter(filter); err != nil {
		return nil, err
	}
	filter.PageSize = exportPageSize
	out := make([]models.AttendanceRecord, 0)
	for page := 1; ; page++ {
		filter.Page = page
		records, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.ErrInternal.Because(err, "failed to query attendance")
		}
		out = append(out, records...)
		if len(records) == 0 || len(out) >= total {
			return out, nil
		}
	}
}

// Export renders every matching record as CSV or PDF.
func (s *AttendanceService) Export(ctx context.Context, filter models.AttendanceFilter, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	records, err := s.All(ctx, filter)
	if err != nil {
		return nil, err
	}
	dataset := export.Dataset{Headers: recordHeaders, Rows: make([]map[string]string, 0, len(records))}
	for _, rec := range records {
		dataset.Rows = append(dataset.Rows, recordRow(rec))
	}

	stamp := s.now().UTC().Format("20060102-150405")
	file := &ExportFile{Rows: len(records)}
	switch format {
	case ExportFormatPDF:
		body, err := s.pdf.Render(dataset, "Attendance records")
		if err != nil {
			return nil, appErrors.ErrInternal.Because(err, "failed to render pdf")
		}
		file.Body, file.ContentType, file.Filename = body, "application/pdf", "attendance-"+stamp+".pdf"
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.ErrInternal.Because(err, "failed to render csv")
		}
		file.Body, file.ContentType, file.Filename = body, "text/csv", "attendance-"+stamp+".csv"
	}
	s.logger.Info("attendance exported", zap.String("format", string(format)), zap.Int("rows", file.Rows))
	return file, nil
}

func recordRow(rec models.AttendanceRecord) map[string]string {
	row := map[string]string{
		"id":          rec.ID,
		"class_id":    rec.ClassID,
		"student_id":  rec.StudentID,
		"date":        rec.Date,
		"period":      strconv.Itoa(rec.Period),
		"status":      string(rec.Status),
		"method":      string(rec.Method),
		"recorded_at": rec.RecordedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.SessionID != nil {
		row["session_id"] = *rec.SessionID
	}
	if rec.DeviceID != nil {
		row["device_id"] = *rec.DeviceID
	}
	if rec.Signal != nil {
		row["signal"] = strconv.Itoa(*rec.Signal)
	}
	return row
}

// Import reads a CSV in export layout and inserts each row. Rows that collide
// with an existing (student, date, period) are counted, never overwritten.
func (s *AttendanceService) Import(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	dataset, err := export.ParseCSV(r)
	if err != nil {
		return nil, appErrors.ErrValidation.Because(err, "unreadable csv")
	}
	for _, required := range []string{"class_id", "student_id", "date", "period"} {
		if !hasHeader(dataset.Headers, required) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv is missing the %s column", required))
		}
	}

	result := &models.ImportResult{}
	for i, row := range dataset.Rows {
		line := i + 2
		record, err := recordFromRow(row, s.now)
		if err != nil {
			result.Rejected = append(result.Rejected, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		if err := s.repo.Insert(ctx, record); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				result.Duplicates++
				continue
			}
			return result, appErrors.ErrInternal.Because(err, fmt.Sprintf("import stopped at line %d", line))
		}
		result.Inserted++
		s.metrics.ObservePresence(string(record.Method), "imported")
	}
	s.logger.Info("attendance imported",
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", len(result.Rejected)))
	return result, nil
}

func hasHeader(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}

func recordFromRow(row map[string]string, now func() time.Time) (*models.AttendanceRecord, error) {
	get := func(k string) string { return strings.TrimSpace(row[k]) }

	rec := &models.AttendanceRecord{
		ID:        get("id"),
		ClassID:   get("class_id"),
		StudentID: get("student_id"),
		Date:      get("date"),
		Status:    models.AttendanceStatus(strings.ToLower(get("status"))),
		Method:    models.AttendanceMethod(strings.ToLower(get("method"))),
	}
	if rec.ClassID == "" || rec.StudentID == "" {
		return nil, fmt.Errorf("class_id and student_id are required")
	}
	if _, err := time.Parse(models.DateLayout, rec.Date); err != nil {
		return nil, fmt.Errorf("date %q must use YYYY-MM-DD", rec.Date)
	}
	period, err := strconv.Atoi(get("period"))
	if err != nil || period < 1 {
		return nil, fmt.Errorf("period %q must be a positive number", get("period"))
	}
	rec.Period = period
	if rec.Status == "" {
		rec.Status = models.AttendanceStatusPresent
	}
	if !rec.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	if rec.Method == "" {
		rec.Method = models.MethodManual
	}
	if !rec.Method.Valid() {
		return nil, fmt.Errorf("unknown method %q", rec.Method)
	}
	if v := get("session_id"); v != "" {
		rec.SessionID = &v
	}
	if v := get("device_id"); v != "" {
		rec.DeviceID = &v
	}
	if v := get("signal"); v != "" {
		signal, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("signal %q must be a number", v)
		}
		rec.Signal = &signal
	}
	if v := get("recorded_at"); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("recorded_at %q must be RFC3339", v)
		}
		rec.RecordedAt = ts.UTC()
	} else {
		rec.RecordedAt = now().UTC()
	}
	return rec, nil
}
