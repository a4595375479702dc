package auth

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the authentication subsystem.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	// ErrTokenExpired wraps ErrInvalidToken so callers that only care about
	// the coarse class can keep matching on ErrInvalidToken.
	ErrTokenExpired  = &expiredError{}
	ErrMissingToken  = errors.New("missing bearer token")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrEmptyUsername = errors.New("username cannot be empty")
)

type expiredError struct{}

func (*expiredError) Error() string { return "invalid token: expired" }
func (*expiredError) Unwrap() error { return ErrInvalidToken }

// RoleAdmin is the role assigned by self-service registration.
const RoleAdmin = "admin"

// Store abstracts the persistent user catalogue. Implementations must be safe
// for concurrent use and return ErrUserNotFound / ErrUserExists.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
}

// User represents a persisted account with credentials.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         string
	Disabled     bool
	CreatedAt    time.Time
}

// Principal is the caller identity recovered from a verified token. It is
// never persisted and lives for a single request.
type Principal struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Config configures token issuance.
type Config struct {
	Secret   string
	TokenTTL time.Duration
}
