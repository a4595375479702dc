package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	roleClaim       = "role"
	DefaultTokenTTL = time.Hour
)

// Issuer signs and verifies HS256 bearer tokens with a process-wide secret.
// Rotating the secret invalidates every token issued before.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. An empty secret is a configuration error.
func NewIssuer(cfg Config) (*Issuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("jwt secret must be configured")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}, nil
}

// tokenClaims mirrors the registered and private claims we put in a token.
type tokenClaims struct {
	Subject   string `json:"sub"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// Issue produces a signed token for subject/role valid for the configured TTL.
func (i *Issuer) Issue(subject, role string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl).Truncate(time.Second)

	token := jwt.New()
	for key, value := range map[string]any{
		jwt.SubjectKey:    subject,
		jwt.IssuedAtKey:   now,
		jwt.ExpirationKey: expiresAt,
		roleClaim:         role,
	} {
		if err := token.Set(key, value); err != nil {
			return "", time.Time{}, fmt.Errorf("set claim %s: %w", key, err)
		}
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), i.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its Principal.
// Any failure matches ErrInvalidToken; an expired token also matches
// ErrTokenExpired.
func (i *Issuer) Verify(raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}

	// Expiry is checked below against i.now so it can be driven in tests.
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256(), i.secret),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	payload, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ExpiresAt == 0 {
		return nil, fmt.Errorf("%w: missing sub or exp", ErrInvalidToken)
	}

	expiresAt := time.Unix(claims.ExpiresAt, 0)
	if !i.now().Before(expiresAt) {
		return nil, ErrTokenExpired
	}
	return &Principal{Subject: claims.Subject, Role: claims.Role, ExpiresAt: expiresAt}, nil
}
