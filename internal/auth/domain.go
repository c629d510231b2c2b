package auth

import (
	"fmt"
	"time"

	"github.com/ganacsi/ganacsi/internal/platform/httpx"
)

// Role gates access to privileged endpoints.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// DefaultResetTokenTTL is the lifetime of a password reset token.
const DefaultResetTokenTTL = time.Hour

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", httpx.ErrUnauthorized)
	ErrInvalidResetToken  = fmt.Errorf("%w: invalid or expired reset token", httpx.ErrValidation)
	ErrUserNotFound       = fmt.Errorf("user %w", httpx.ErrNotFound)
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	CompanyID    int64
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResetToken is a single-use password reset grant.
type ResetToken struct {
	UserID    int64
	Token     string
	CreatedAt time.Time
}

// Expired reports whether the token is older than ttl at now.
func (t ResetToken) Expired(now time.Time, ttl time.Duration) bool {
	return !now.Before(t.CreatedAt.Add(ttl))
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID    int64
	CompanyID int64
	Role      Role
}
