package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
	"github.com/noah-isme/sma-presence-api/pkg/logger"
)

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var tokens = validatorStub{
	"fac":  {UserID: "u1", Identifier: "F1", Role: models.RoleFaculty},
	"stud": {UserID: "u2", Identifier: "S1", Role: models.RoleStudent},
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/students/:id", append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(logger.ContextActorKey))
	})...)
	return r
}

func do(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := newRouter(JWT(tokens))

	rec := do(r, "/students/S1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, rec))

	rec = do(r, "/students/S1", "Token fac")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(r, "/students/S1", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAttachesClaimsAndActor(t *testing.T) {
	r := newRouter(JWT(tokens))
	rec := do(r, "/students/S1", "Bearer fac")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "faculty:F1", rec.Body.String())
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	r := newRouter(OptionalJWT(tokens))
	assert.Equal(t, http.StatusOK, do(r, "/students/S1", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "/students/S1", "Bearer nope").Code)
	assert.Equal(t, "student:S1", do(r, "/students/S1", "Bearer stud").Body.String())
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(JWT(tokens), RequireRoles(models.RoleFaculty, models.RoleAdmin))
	assert.Equal(t, http.StatusOK, do(r, "/students/S1", "Bearer fac").Code)

	rec := do(r, "/students/S1", "Bearer stud")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, rec))
}

func TestSelfOrAdmitsOwnIdentifier(t *testing.T) {
	r := newRouter(JWT(tokens), SelfOr("id", models.RoleFaculty))
	assert.Equal(t, http.StatusOK, do(r, "/students/S1", "Bearer stud").Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/students/S2", "Bearer stud").Code)
	assert.Equal(t, http.StatusOK, do(r, "/students/S2", "Bearer fac").Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	r := newRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, do(r, "/students/S1", "").Code)
}

func TestMetricsRecordsRouteTemplate(t *testing.T) {
	metrics := service.NewMetricsService()
	r := newRouter(Metrics(metrics))
	require.Equal(t, http.StatusOK, do(r, "/students/S1", "").Code)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" && l.GetValue() == "/students/:id" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}

func TestCORSAnswersPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://portal.example.edu/"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://portal.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}
