package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated identity read from the OAuth ID token.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Picture    string    `json:"picture,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Session carries the bearer token and identity for one login. It is created
// at login, handed explicitly to anything that talks to the backend, and torn
// down at logout. There is no package-global token.
type Session struct {
	Token     string    `json:"token,omitempty"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromToken builds a session from a raw bearer token. The signature is the
// backend's to verify; locally only the identity and expiry claims are read.
func FromToken(token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("session: empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("session: parse token: %w", err)
	}

	now := time.Now()
	s := &Session{
		Token:     token,
		CreatedAt: now,
		User: User{
			ID:         stringClaim(claims, "sub"),
			Email:      stringClaim(claims, "email"),
			Name:       stringClaim(claims, "name"),
			Picture:    stringClaim(claims, "picture"),
			CreatedAt:  now,
			LastActive: now,
		},
	}
	if s.User.Name == "" {
		s.User.Name = s.User.Email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Demo returns the synthetic offline identity used when no login exists.
func Demo() *Session {
	now := time.Now()
	return &Session{
		CreatedAt: now,
		User: User{
			ID:         "demo",
			Email:      "demo@parley.local",
			Name:       "Demo User",
			CreatedAt:  now,
			LastActive: now,
		},
	}
}

// Expired reports whether the token's exp claim has passed. Sessions without
// an expiry (demo) never expire.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Authorization returns the value for the Authorization header, or "" for
// tokenless demo sessions.
func (s *Session) Authorization() string {
	if s == nil || s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

// Save persists the session for later CLI invocations. The file is private to
// the user: it holds the bearer token.
func (s *Session) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("session: %w", err)
		}
	}
	return os.WriteFile(path, b, 0o600)
}

// Load reads a previously saved session.
func Load(path string) (*Session, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", path, err)
	}
	return &s, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
