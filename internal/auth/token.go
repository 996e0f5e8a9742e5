package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionDuration is how long a sign-in lasts.
	SessionDuration = 7 * 24 * time.Hour

	issuer = "darkroom"

	audienceSession = "session"
	audienceUpload  = "upload"
)

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenScope is returned when an upload token is presented for a
	// different key than it was issued for.
	ErrTokenScope = errors.New("token not valid for this key")
)

type sessionClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

type uploadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 tokens for sessions and for direct
// uploads to local storage.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer returns a TokenIssuer keyed by secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("auth secret must be at least 32 bytes")
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// IssueSession returns a signed session token and its expiry.
func (t *TokenIssuer) IssueSession(email string, role Role) (string, time.Time, error) {
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", role)
	}
	now := t.now()
	exp := now.Add(SessionDuration)
	claims := &sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceSession},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// ParseSession verifies a session token.
func (t *TokenIssuer) ParseSession(token string) (*Session, error) {
	claims := &sessionClaims{}
	if err := t.parse(token, audienceSession, claims); err != nil {
		return nil, err
	}
	if !claims.Role.Valid() || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return &Session{
		Email:     claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SignUpload returns a token authorizing one PUT of key until expires
// elapses.
func (t *TokenIssuer) SignUpload(key string, expires time.Duration) (string, error) {
	now := t.now()
	claims := &uploadClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceUpload},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expires)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign upload: %w", err)
	}
	return signed, nil
}

// VerifyUpload checks that token authorizes an upload of key.
func (t *TokenIssuer) VerifyUpload(token, key string) error {
	claims := &uploadClaims{}
	if err := t.parse(token, audienceUpload, claims); err != nil {
		return err
	}
	if claims.Key != key {
		return ErrTokenScope
	}
	return nil
}

func (t *TokenIssuer) parse(token, audience string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}
