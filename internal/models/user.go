package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of actors the service distinguishes.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts any casing and rejects roles outside the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleFaculty:
		return RoleFaculty, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Valid reports whether the role is one of the known variants.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Principal is the identity attached to a request or connection once, at setup.
// Identifier is the roll number or staff id that rosters and schedules refer to.
type Principal struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Role       Role   `json:"role"`
}

// User is an account in the users table. Students and faculty log in with
// their roll number or staff id as Identifier.
type User struct {
	ID           string    `db:"id" json:"id"`
	Identifier   string    `db:"identifier" json:"identifier"`
	Role         Role      `db:"role" json:"role"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
