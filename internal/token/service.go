// Package token implements the access-token service: issuing signed JWTs,
// validating them against signature, expiry and the revocation registry,
// and revoking them ahead of their natural expiry.
package token

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any access token that fails validation:
// bad signature, wrong algorithm, expired, or revoked. Callers treat all
// of these uniformly as "unauthenticated".
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a freshly issued credential. Value is the signed JWT
// string handed to the client; ID is the jti claim used by the revocation
// registry. Access tokens are never persisted.
type AccessToken struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// Service issues and validates HS256 access tokens. It is stateless apart
// from the injected revocation registry and safe for concurrent use.
type Service struct {
	secret   []byte
	ttl      time.Duration
	registry Registry
	now      func() time.Time
}

// NewService returns a Service signing with the given secret and issuing
// tokens valid for ttl.
func NewService(secret string, ttl time.Duration, registry Registry) *Service {
	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		registry: registry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock and returns the service.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue builds and signs a token for the given subject. The token carries
// sub, a fresh random jti, iat and exp, and nothing else; validation needs
// no store lookup beyond the narrow revocation check.
func (s *Service) Issue(subjectID uint64) (AccessToken, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	id := uuid.NewString()
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(subjectID, 10),
		"jti": id,
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Value: signed, ID: id, ExpiresAt: exp}, nil
}

// Validate verifies signature and expiry, then checks the token ID against
// the revocation registry. It returns the subject and token ID on success
// and ErrInvalidToken on any validation failure. Registry infrastructure
// errors propagate as-is; they are server faults, not client ones.
func (s *Service) Validate(ctx context.Context, raw string) (uint64, string, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !tok.Valid {
		return 0, "", ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	subjectID, err := strconv.ParseUint(sub, 10, 64)
	if err != nil {
		return 0, "", ErrInvalidToken
	}
	id, _ := claims["jti"].(string)
	if id == "" {
		return 0, "", ErrInvalidToken
	}
	revoked, err := s.registry.Contains(ctx, id)
	if err != nil {
		return 0, "", err
	}
	if revoked {
		return 0, "", ErrInvalidToken
	}
	return subjectID, id, nil
}

// Revoke places the token's ID in the revocation registry with a TTL equal
// to its remaining lifetime, so registry growth is bounded by the access
// TTL. Revocation is best-effort and idempotent: malformed or already
// expired tokens are ignored without error.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil
	}
	id, _ := claims["jti"].(string)
	if id == "" {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	remaining := exp.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	return s.registry.Add(ctx, id, remaining)
}
