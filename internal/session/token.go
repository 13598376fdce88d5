package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Sign mints an HS256 token carrying the user's identity claims. Production
// tokens come from the OAuth provider; this is for the stub backend and tests.
func Sign(secret string, u User, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("session: signing secret is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"name":  u.Name,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if u.Picture != "" {
		claims["picture"] = u.Picture
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify checks an HS256 signature and returns the identity claims.
func Verify(secret, token string) (User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return User{}, fmt.Errorf("session: verify token: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return User{}, errors.New("session: invalid token")
	}
	return User{
		ID:      stringClaim(claims, "sub"),
		Email:   stringClaim(claims, "email"),
		Name:    stringClaim(claims, "name"),
		Picture: stringClaim(claims, "picture"),
	}, nil
}
