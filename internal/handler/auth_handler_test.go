package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/service"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type authServiceMock struct {
	lastLogin   models.LoginRequest
	lastAccount service.CreateAccountRequest
	loginErr    error
}

func (m *authServiceMock) Authenticate(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	m.lastLogin = req
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &models.LoginResponse{AccessToken: "token-1", ExpiresIn: 3600, User: models.UserInfo{Identifier: req.Identifier}}, nil
}

func (m *authServiceMock) CreateAccount(ctx context.Context, req service.CreateAccountRequest) (*models.UserInfo, error) {
	m.lastAccount = req
	return &models.UserInfo{ID: "u-new", Identifier: req.Identifier, FullName: req.FullName, Role: models.Role(req.Role)}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := testContext(http.MethodPost, "/auth/login", models.LoginRequest{Role: "faculty", Identifier: "F1", Secret: "secret"}, nil)
	h.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "F1", svc.lastLogin.Identifier)
	data, _ := decodeEnvelope(t, w)
	var res models.LoginResponse
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, "token-1", res.AccessToken)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{loginErr: appErrors.ErrUnauthorized})

	c, w := testContext(http.MethodPost, "/auth/login", models.LoginRequest{Role: "faculty", Identifier: "F1", Secret: "wrong"}, nil)
	h.Login(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = testContext(http.MethodPost, "/auth/login", "not json", nil)
	h.Login(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	h := NewAuthHandler(&authServiceMock{})

	claims := &models.JWTClaims{UserID: "u-s1", Identifier: "S1", Role: models.RoleStudent, FullName: "Sam One"}
	c, w := testContext(http.MethodGet, "/auth/me", nil, claims)
	h.Me(c)

	require.Equal(t, http.StatusOK, w.Code)
	data, _ := decodeEnvelope(t, w)
	var info models.UserInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "S1", info.Identifier)
	assert.Equal(t, models.RoleStudent, info.Role)
	assert.Equal(t, "Sam One", info.FullName)

	c, w = testContext(http.MethodGet, "/auth/me", nil, nil)
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerCreateAccount(t *testing.T) {
	svc := &authServiceMock{}
	h := NewAuthHandler(svc)

	c, w := testContext(http.MethodPost, "/users", service.CreateAccountRequest{Role: "student", Identifier: "S3", FullName: "Sky Three", Secret: "secret1"}, adminUser)
	h.CreateAccount(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "S3", svc.lastAccount.Identifier)
}
