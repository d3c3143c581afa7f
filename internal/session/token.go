// Package session controls who may vote: an access-code gate on join and
// bearer tokens for everything after. The rest of the service only ever sees
// the participant id a token verified to.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

var (
	ErrInvalidToken = eris.New("session: invalid token")
	ErrExpiredToken = eris.New("session: expired token")
)

// Tokens issues and verifies HS256 participant tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for participantID, valid for the configured TTL.
func (t *Tokens) Issue(participantID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   participantID,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", eris.Wrap(err, "session: sign token")
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the participant id.
func (t *Tokens) Verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
