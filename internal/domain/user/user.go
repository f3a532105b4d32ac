// Package user defines the user domain model for authentication.
package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/sst-platform/incidentd/internal/domain"
)

// Username and password bounds.
const (
	MinUsernameLen = 3
	MaxUsernameLen = 64
	MinPasswordLen = 8
)

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     *string   `json:"full_name"`
	PasswordHash string    `json:"-"` // never serialized
	IsActive     bool      `json:"is_active"`
	IsStaff      bool      `json:"is_staff"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateRequest is the input for registering a new user.
type CreateRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"` //nolint:gosec // request field, not a hardcoded secret
	FullName *string `json:"full_name,omitempty"`
	IsStaff  bool    `json:"-"` // set only by the admin CLI
}

// Validate checks that the CreateRequest has all required fields.
func (r *CreateRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if len(r.Username) < MinUsernameLen || len(r.Username) > MaxUsernameLen {
		return fmt.Errorf("%w: username must be %d-%d characters", domain.ErrValidation, MinUsernameLen, MaxUsernameLen)
	}
	if strings.ContainsAny(r.Username, " \t\r\n") {
		return fmt.Errorf("%w: username must not contain whitespace", domain.ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if len(r.Password) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLen)
	}
	return nil
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Validate checks that the LoginRequest has all required fields.
func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return fmt.Errorf("%w: username is required", domain.ErrValidation)
	}
	if r.Password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	return nil
}

// TokenTypeBearer is the only issued token type.
const TokenTypeBearer = "bearer"

// Token is returned after successful authentication.
type Token struct {
	AccessToken string `json:"access_token"` //nolint:gosec // response field, not a hardcoded secret
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// Claims is the decoded identity carried by an access token.
type Claims struct {
	Subject   string    `json:"sub"`
	UserID    int64     `json:"-"`
	Username  string    `json:"username"`
	IsStaff   bool      `json:"is_staff"`
	ExpiresAt time.Time `json:"exp"`
}
