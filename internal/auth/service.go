package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"aegis-core/pkg/logger"
)

// dummyHash is compared against when the username is unknown so a lookup
// miss costs the same as a wrong password.
var dummyHash, _ = HashPassword("aegis-dummy-password")

// Service implements login, registration and request authentication.
type Service struct {
	store  Store
	issuer *Issuer
	audit  *slog.Logger
}

// NewService wires a Service from a user store and a token issuer.
func NewService(store Store, issuer *Issuer) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth service requires a user store")
	}
	if issuer == nil {
		return nil, errors.New("auth service requires a token issuer")
	}
	return &Service{store: store, issuer: issuer, audit: logger.Audit()}, nil
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Login verifies username/password and issues a token. Unknown users,
// disabled accounts and wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	username = strings.TrimSpace(username)
	user, err := s.store.FindUserByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		VerifyPassword(dummyHash, password)
		s.audit.Warn("login_failed", "user", username)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !VerifyPassword(user.PasswordHash, password) || user.Disabled {
		s.audit.Warn("login_failed", "user", username)
		return nil, ErrInvalidCredentials
	}

	raw, expiresAt, err := s.issuer.Issue(user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	s.audit.Info("login_succeeded", "user", user.Username, "role", user.Role)
	return &Token{AccessToken: raw, ExpiresAt: expiresAt}, nil
}

// Register creates an admin account. Duplicate usernames return
// ErrUserExists.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{Username: username, PasswordHash: hash, Role: RoleAdmin}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.audit.Info("user_registered", "user", username, "role", user.Role)
	return user, nil
}

// Authenticate verifies the Authorization header value and returns the
// caller's Principal.
func (s *Service) Authenticate(authorization string) (*Principal, error) {
	parts := strings.SplitN(strings.TrimSpace(authorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, ErrMissingToken
	}
	return s.issuer.Verify(parts[1])
}
