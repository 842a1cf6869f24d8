package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Role       string `json:"role" validate:"required,oneof=student faculty admin"`
	Identifier string `json:"identifier" validate:"required"`
	Secret     string `json:"secret" validate:"required"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	FullName   string `json:"full_name"`
	Role       Role   `json:"role"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Role       Role   `json:"role"`
	FullName   string `json:"full_name"`
	jwt.RegisteredClaims
}

// Principal reduces the claims to the identity used by services.
func (c *JWTClaims) Principal() Principal {
	return Principal{UserID: c.UserID, Identifier: c.Identifier, Role: c.Role}
}
