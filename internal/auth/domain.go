// Package auth provides tenant-scoped user accounts and JWT-based request
// authentication. Tokens carry the issuing tenant's schema so a token minted
// for one tenant can never act in another.
package auth

import (
	"errors"
	"time"
)

// User is one account inside a tenant schema.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Domain errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("email is already registered")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
)
