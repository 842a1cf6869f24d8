package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type attendanceServiceMock struct {
	lastFilter   models.AttendanceFilter
	lastFormat   service.ExportFormat
	imported     string
	queryErr     error
	importResult *models.ImportResult
}

func (m *attendanceServiceMock) Query(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	m.lastFilter = filter
	if m.queryErr != nil {
		return nil, nil, m.queryErr
	}
	return []models.AttendanceRecord{{ID: "r1", StudentID: filter.StudentID}}, &models.Pagination{Page: 1, PageSize: 100, TotalCount: 1}, nil
}

func (m *attendanceServiceMock) Export(ctx context.Context, filter models.AttendanceFilter, format service.ExportFormat) (*service.ExportFile, error) {
	m.lastFilter = filter
	m.lastFormat = format
	return &service.ExportFile{Filename: "attendance-x.csv", ContentType: "text/csv", Body: []byte("id\n")}, nil
}

func (m *attendanceServiceMock) Import(ctx context.Context, r io.Reader) (*models.ImportResult, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.imported = string(body)
	if m.importResult != nil {
		return m.importResult, nil
	}
	return &models.ImportResult{Inserted: 1}, nil
}

func TestAttendanceHandlerListParsesFilter(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)

	c, w := testContext(http.MethodGet, "/attendance?class_id=math-a&from=2024-03-01&to=2024-03-31&period=2&method=MANUAL&page=3", nil, facultyF1)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "math-a", svc.lastFilter.ClassID)
	assert.Equal(t, "2024-03-01", svc.lastFilter.DateFrom)
	assert.Equal(t, "2024-03-31", svc.lastFilter.DateTo)
	require.NotNil(t, svc.lastFilter.Period)
	assert.Equal(t, 2, *svc.lastFilter.Period)
	require.NotNil(t, svc.lastFilter.Method)
	assert.Equal(t, models.MethodManual, *svc.lastFilter.Method)
	assert.Equal(t, 3, svc.lastFilter.Page)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestAttendanceHandlerListRejectsBadQuery(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{})

	c, w := testContext(http.MethodGet, "/attendance?period=two", nil, facultyF1)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = testContext(http.MethodGet, "/attendance?method=telepathy", nil, facultyF1)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerStudentUsesPathIdentifier(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)

	c, w := testContext(http.MethodGet, "/students/S1/attendance?student_id=S2", nil, &models.JWTClaims{Identifier: "S1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "S1"}}
	h.Student(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S1", svc.lastFilter.StudentID)
}

func TestAttendanceHandlerExport(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)

	c, w := testContext(http.MethodGet, "/attendance/export?session_id=sess-1&format=pdf", nil, adminUser)
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatPDF, svc.lastFormat)
	assert.Equal(t, "sess-1", svc.lastFilter.SessionID)
	assert.Equal(t, `attachment; filename="attendance-x.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "id\n", w.Body.String())
}

func TestAttendanceHandlerImportRawBody(t *testing.T) {
	svc := &attendanceServiceMock{importResult: &models.ImportResult{Inserted: 2, Duplicates: 1}}
	h := NewAttendanceHandler(svc)

	c, w := testContext(http.MethodPost, "/attendance/import", "class_id,student_id,date,period\n", adminUser)
	c.Request.Header.Set("Content-Type", "text/csv")
	h.Import(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "class_id,student_id,date,period\n", svc.imported)
	assert.Contains(t, w.Body.String(), `"duplicates":1`)
}

func TestAttendanceHandlerImportMultipart(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("class_id,student_id,date,period\nmath-a,S1,2024-03-04,1\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	c, w := testContext(http.MethodPost, "/attendance/import", buf.String(), adminUser)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	h.Import(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, svc.imported, "math-a,S1,2024-03-04,1")
}

func TestAttendanceHandlerPropagatesServiceErrors(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{queryErr: appErrors.Clone(appErrors.ErrValidation, "bad date")})
	c, w := testContext(http.MethodGet, "/attendance?from=yesterday", nil, adminUser)
	h.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
