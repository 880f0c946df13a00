package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSource supplies the bearer token sent with each call to the store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("static token is empty")
	}
	return string(t), nil
}

// SignedAssertion mints a short-lived HS256 JWT for every call, identifying
// the gateway to the store by client id.
type SignedAssertion struct {
	ClientID string
	Audience string
	Key      []byte
	TTL      time.Duration

	now func() time.Time
}

func NewSignedAssertion(clientID, audience string, key []byte, ttl time.Duration) (*SignedAssertion, error) {
	if clientID == "" {
		return nil, errors.New("signed assertion: client id is required")
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("signed assertion: key must be at least 32 bytes, got %d", len(key))
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SignedAssertion{ClientID: clientID, Audience: audience, Key: key, TTL: ttl, now: time.Now}, nil
}

func (s *SignedAssertion) Token(context.Context) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.ClientID,
		Subject:   s.ClientID,
		Audience:  jwt.ClaimStrings{s.Audience},
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
