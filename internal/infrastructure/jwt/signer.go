package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the webhook token payload.
type Claims struct {
	Mobile  string `json:"mobile"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Signer issues and checks HS256 tokens embedded in dynamic webhook URLs.
type Signer struct {
	key    []byte
	expiry time.Duration
	now    func() time.Time
}

// NewSigner returns a signer whose tokens live for expiry. The gateway may
// deliver a hook slightly after the wait window, so callers pass some slack.
func NewSigner(key string, expiry time.Duration) (*Signer, error) {
	if key == "" {
		return nil, errors.New("webhook signing key is empty")
	}
	return &Signer{key: []byte(key), expiry: expiry, now: time.Now}, nil
}

func (s *Signer) Sign(mobile, purpose string) (string, error) {
	now := s.now()
	claims := Claims{
		Mobile:  mobile,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   mobile,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign webhook token: %w", err)
	}
	return signed, nil
}

func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
