package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account kinds
type Role string

const (
	RolePatient Role = "patient"
	RoleInsurer Role = "insurer"
)

// ParseRole validates a role string coming from a request or the CLI
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RoleInsurer:
		return RoleInsurer, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleInsurer:
		return true
	}
	return false
}

// User represents an account in the system
type User struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password_hash"` // Not serialized
	Role         Role      `json:"role" bson:"role"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// NormalizeEmail lower-cases and trims an address; emails are unique case-insensitively
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
