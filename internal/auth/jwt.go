package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrSecretNotReady = errors.New("JWT secret not initialized")
)

// JWTClaims represents the JWT token claims. Subject carries the user's email.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates access tokens
type Issuer struct {
	secret           []byte
	ttl              time.Duration
	expireAtMidnight bool
	now              func() time.Time
}

// NewIssuer creates an issuer. When expireAtMidnight is set tokens expire at
// the next UTC midnight, otherwise after ttl.
func NewIssuer(secret string, ttl time.Duration, expireAtMidnight bool) *Issuer {
	return &Issuer{
		secret:           []byte(secret),
		ttl:              ttl,
		expireAtMidnight: expireAtMidnight,
		now:              time.Now,
	}
}

// SetClock overrides the time source
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Expiry returns the expiration for a token issued at t
func (i *Issuer) Expiry(t time.Time) time.Time {
	if i.expireAtMidnight {
		return NextMidnightUTC(t)
	}
	return t.Add(i.ttl)
}

// NextMidnightUTC returns the first UTC midnight strictly after t
func NextMidnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// GenerateToken creates a new signed token for a user and returns it with its expiry
func (i *Issuer) GenerateToken(userID, email, role string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrSecretNotReady
	}

	now := i.now()
	expiresAt := i.Expiry(now)

	claims := JWTClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*JWTClaims, error) {
	if len(i.secret) == 0 {
		return nil, ErrSecretNotReady
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
