// Package service contains the auth orchestrator: the login / logout /
// refresh state machine composing the token service, the identity store
// and the refresh-token store, plus the broker event publisher.
package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/windcore/authsvc/internal/model"
	q "github.com/windcore/authsvc/internal/queue"
	"github.com/windcore/authsvc/internal/repository"
	"github.com/windcore/authsvc/internal/token"
)

// ErrInvalidCredentials is returned by Login for any credential failure.
// Unknown user and wrong password map to the same value so the response
// cannot be used to probe which emails exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore is the identity-store boundary the orchestrator reads from.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	VerifyPassword(u *model.User, password string) bool
}

// TokenIssuer is the access-token surface the orchestrator needs.
type TokenIssuer interface {
	Issue(subjectID uint64) (token.AccessToken, error)
	Revoke(ctx context.Context, raw string) error
}

// RefreshStore is the refresh-token lifecycle surface.
type RefreshStore interface {
	Generate(ctx context.Context, rawAccess string) (*model.RefreshToken, string, error)
	Refresh(ctx context.Context, rawValue string) (*repository.TokenPair, bool, error)
	Invalidate(ctx context.Context, rawValue string, actorID uint64) error
	InvalidateAllForUser(ctx context.Context, userID, actorID uint64) error
}

// EventSink accepts auth activity events. nil disables publishing.
type EventSink func(ctx context.Context, event q.AuthEvent) error

// AuthService answers the three auth use cases. Per request it moves
// Anonymous -> Authenticating -> Authenticated or Rejected; there is no
// shared mutable state between requests.
type AuthService struct {
	users   UserStore
	tokens  TokenIssuer
	refresh RefreshStore
	publish EventSink
}

// NewAuthService wires the orchestrator. publish may be nil.
func NewAuthService(users UserStore, tokens TokenIssuer, refresh RefreshStore, publish EventSink) *AuthService {
	return &AuthService{users: users, tokens: tokens, refresh: refresh, publish: publish}
}

// Login verifies credentials and, on success, returns the user together
// with a fresh access/refresh pair. Every failure path returns
// ErrInvalidCredentials with no token attached.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, *repository.TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !u.IsActive || !s.users.VerifyPassword(u, password) {
		return nil, nil, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, nil, err
	}
	rec, raw, err := s.refresh.Generate(ctx, access.Value)
	if err != nil {
		return nil, nil, err
	}

	s.emit(ctx, q.AuthEvent{Kind: q.KindLoggedIn, UserID: u.ID, Email: u.Email})
	return u, &repository.TokenPair{Access: access, Refresh: rec, RefreshValue: raw}, nil
}

// Logout terminates the subject's session: the presented access token is
// revoked ahead of its expiry and every live refresh token owned by the
// subject is soft-deleted. Both operations are idempotent, so repeating a
// logout never errors.
func (s *AuthService) Logout(ctx context.Context, rawAccess string, subjectID uint64) error {
	if err := s.tokens.Revoke(ctx, rawAccess); err != nil {
		return err
	}
	if err := s.refresh.InvalidateAllForUser(ctx, subjectID, subjectID); err != nil {
		return err
	}
	s.emit(ctx, q.AuthEvent{Kind: q.KindLoggedOut, UserID: subjectID})
	return nil
}

// Refresh delegates to the store's rotation protocol. Detected reuse of a
// consumed token is published for operators but the caller still sees the
// uniform repository.ErrInvalidOperation.
func (s *AuthService) Refresh(ctx context.Context, rawValue string) (*repository.TokenPair, error) {
	pair, reused, err := s.refresh.Refresh(ctx, rawValue)
	if reused {
		s.emit(ctx, q.AuthEvent{Kind: q.KindReuseDetected})
	}
	if err != nil {
		return nil, err
	}
	s.emit(ctx, q.AuthEvent{Kind: q.KindTokenRotated, UserID: pair.Refresh.UserID})
	return pair, nil
}

// emit publishes best-effort; publish failures never affect the request.
func (s *AuthService) emit(ctx context.Context, event q.AuthEvent) {
	if s.publish == nil {
		return
	}
	event.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	_ = s.publish(ctx, event)
}
