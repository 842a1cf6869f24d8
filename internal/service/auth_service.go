package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/internal/repository"
	appErrors "github.com/noah-isme/sma-presence-api/pkg/errors"
)

type authUserRepository interface {
	FindByIdentifier(ctx context.Context, role models.Role, identifier string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService is the identity collaborator: it checks credentials and issues
// the tokens that carry a caller's role to HTTP and websocket handlers.
type AuthService struct {
	repo      authUserRepository
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	return &AuthService{repo: repo, validator: validate, logger: logger, config: config, now: time.Now}
}

// Authenticate verifies a role/identifier/secret triple and issues an access token.
func (s *AuthService) Authenticate(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.ErrValidation.Because(err, "invalid login payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.ErrValidation.Because(err, "unknown role")
	}

	user, err := s.repo.FindByIdentifier(ctx, role, req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to fetch user")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Secret)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	issuedAt := s.now().UTC()
	token, err := s.issue(user, issuedAt)
	if err != nil {
		return nil, appErrors.ErrInternal.Because(err, "failed to create access token")
	}
	s.logger.Info("user authenticated", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User: models.UserInfo{
			ID:         user.ID,
			Identifier: user.Identifier,
			FullName:   user.FullName,
			Role:       user.Role,
		},
	}, nil
}

// CreateAccountRequest registers a user. Used by admins and the seed command.
type CreateAccountRequest struct {
	Role       string `json:"role" validate:"required,oneof=student faculty admin"`
	Identifier string `json:"identifier" validate:"required"`
	FullName   string `json:"full_name" validate:"required"`
	Secret     string `json:"secret" validate:"required,min=6"`
}

// CreateAccount hashes the secret and stores the account.
func (s *AuthService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*models.UserInfo, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.ErrValidation.Because(err, "invalid account payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.ErrValidation.Because(err, "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.ErrInternal.Because(err, "failed to hash secret")
	}
	user := &models.User{
		Identifier:   req.Identifier,
		Role:         role,
		FullName:     req.FullName,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an account with this identifier already exists")
		}
		return nil, appErrors.ErrInternal.Because(err, "failed to create account")
	}
	return &models.UserInfo{ID: user.ID, Identifier: user.Identifier, FullName: user.FullName, Role: user.Role}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.ErrUnauthorized.Because(err, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token carries an unknown role")
	}

	return claims, nil
}

func (s *AuthService) issue(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:     user.ID,
		Identifier: user.Identifier,
		Role:       user.Role,
		FullName:   user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}
