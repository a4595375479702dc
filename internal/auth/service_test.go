package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := NewService(store, newTestIssuer(t))
	require.NoError(t, err)
	return svc, store
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct")
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "correct"))
	require.False(t, VerifyPassword(hash, "wrong"))
	require.False(t, VerifyPassword("not-a-hash", "correct"))

	_, err = HashPassword("")
	require.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerifyPasswordRejectsMalformedParameters(t *testing.T) {
	const tail = "$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2V5a2U"
	cases := map[string]string{
		"zero threads":    "$argon2id$v=19$m=65536,t=2,p=0" + tail,
		"zero iterations": "$argon2id$v=19$m=65536,t=0,p=1" + tail,
		"huge memory":     "$argon2id$v=19$m=4294967295,t=2,p=1" + tail,
		"huge iterations": "$argon2id$v=19$m=65536,t=4000000000,p=1" + tail,
		"tiny memory":     "$argon2id$v=19$m=1,t=2,p=4" + tail,
		"wrong version":   "$argon2id$v=16$m=65536,t=2,p=1" + tail,
		"empty key":       "$argon2id$v=19$m=65536,t=2,p=1$c2FsdA$",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			require.NotPanics(t, func() {
				require.False(t, VerifyPassword(encoded, "x"))
			})
		})
	}
}

func TestLoginWithCorruptStoredHash(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	require.NoError(t, store.CreateUser(ctx, &User{
		Username:     "carol",
		PasswordHash: "$argon2id$v=19$m=65536,t=2,p=0$c2FsdA$a2V5",
		Role:         RoleAdmin,
	}))

	_, err := svc.Login(ctx, "carol", "x")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, err := svc.Register(ctx, "alice", "correct")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, user.Role)

	token, err := svc.Login(ctx, "alice", "correct")
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)

	principal, err := svc.Authenticate("Bearer " + token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", principal.Subject)
	require.Equal(t, RoleAdmin, principal.Role)

	before, err := store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	after, err := store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestLoginUnknownUserIsIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginDisabledUser(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	hash, err := HashPassword("correct")
	require.NoError(t, err)
	require.NoError(t, store.CreateUser(ctx, &User{Username: "bob", PasswordHash: hash, Role: RoleAdmin, Disabled: true}))

	_, err = svc.Login(ctx, "bob", "correct")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, err := svc.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "pw2")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticateHeaderShapes(t *testing.T) {
	svc, _ := newTestService(t)
	for _, header := range []string{"", "Bearer", "Basic abc", "Token x"} {
		_, err := svc.Authenticate(header)
		require.ErrorIs(t, err, ErrMissingToken, header)
	}
	_, err := svc.Authenticate("Bearer not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
