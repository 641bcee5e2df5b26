package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/windcore/authsvc/internal/middleware"
	"github.com/windcore/authsvc/internal/model"
	"github.com/windcore/authsvc/internal/repository"
	"github.com/windcore/authsvc/internal/service"
	"github.com/windcore/authsvc/internal/token"
)

type fakeAuth struct {
	logoutSubject uint64
	logoutRaw     string
}

func testPair() *repository.TokenPair {
	return &repository.TokenPair{
		Access:       token.AccessToken{Value: "signed-access", ExpiresAt: time.Now().Add(15 * time.Minute)},
		Refresh:      &model.RefreshToken{ID: 1, UserID: 10, ExpiresAt: time.Now().Add(24 * time.Hour)},
		RefreshValue: "opaque-refresh",
	}
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*model.User, *repository.TokenPair, error) {
	if email == "u1@example.com" && password == "pw" {
		return &model.User{ID: 10, Email: email, IsActive: true}, testPair(), nil
	}
	return nil, nil, service.ErrInvalidCredentials
}

func (f *fakeAuth) Logout(_ context.Context, rawAccess string, subjectID uint64) error {
	f.logoutRaw = rawAccess
	f.logoutSubject = subjectID
	return nil
}

func (f *fakeAuth) Refresh(_ context.Context, rawValue string) (*repository.TokenPair, error) {
	if rawValue == "valid-refresh" {
		return testPair(), nil
	}
	return nil, repository.ErrInvalidOperation
}

type fakeRegistrar struct{}

func (fakeRegistrar) Create(_ context.Context, email, _ string) (*model.User, error) {
	if email == "taken@example.com" {
		return nil, repository.ErrEmailExists
	}
	return &model.User{ID: 11, Email: email}, nil
}

type alwaysValid struct{}

func (alwaysValid) Validate(context.Context, string) (uint64, string, error) {
	return 10, "jti-1", nil
}

func newTestServer(auth *fakeAuth) *echo.Echo {
	e := echo.New()
	h := NewAuthHandler(auth, fakeRegistrar{})
	g := e.Group("/v1/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	protected := middleware.BearerAuth(alwaysValid{}, nil)
	g.POST("/refresh", h.Refresh, protected)
	g.POST("/logout", h.Logout, protected)
	return e
}

func post(e *echo.Echo, path, body, bearer string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	e.ServeHTTP(w, req)
	return w
}

func decodeTokens(t *testing.T, w *httptest.ResponseRecorder) tokensResp {
	t.Helper()
	var resp tokensResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestLoginReturnsPair(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/login", `{"email":"u1@example.com","password":"pw"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeTokens(t, w)
	if !resp.Success || len(resp.Tokens) != 2 {
		t.Fatalf("expected success with exactly one access and one refresh token: %+v", resp)
	}
	if resp.Tokens[0].Type != "access" || resp.Tokens[1].Type != "refresh" {
		t.Fatalf("unexpected token types: %+v", resp.Tokens)
	}
}

func TestLoginFailureCarriesNoToken(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/login", `{"email":"u1@example.com","password":"nope"}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("Authorization"); got != "" {
		t.Fatalf("Authorization header must be cleared, got %q", got)
	}
	resp := decodeTokens(t, w)
	if resp.Success || len(resp.Tokens) != 0 {
		t.Fatalf("failure response must not attach tokens: %+v", resp)
	}
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/refresh", `{"refresh_token":"valid-refresh"}`, "the-access-token")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeTokens(t, w)
	if len(resp.Tokens) != 2 {
		t.Fatalf("rotation must return a fresh pair: %+v", resp)
	}
}

func TestRefreshRequiresBearer(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/refresh", `{"refresh_token":"valid-refresh"}`, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Authorization"); got != "" {
		t.Fatalf("Authorization header must be cleared, got %q", got)
	}
}

func TestRefreshRejectsConsumedToken(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/refresh", `{"refresh_token":"already-used"}`, "the-access-token")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("Authorization"); got != "" {
		t.Fatalf("Authorization header must be cleared, got %q", got)
	}
}

func TestLogoutClearsBearer(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{}
	e := newTestServer(auth)
	w := post(e, "/v1/auth/logout", "", "the-access-token")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Authorization"); got != "" {
		t.Fatalf("logout response must not carry a reusable bearer, got %q", got)
	}
	if auth.logoutSubject != 10 || auth.logoutRaw != "the-access-token" {
		t.Fatalf("logout not delegated with bearer context: subject=%d raw=%q",
			auth.logoutSubject, auth.logoutRaw)
	}
}

func TestRegisterConflict(t *testing.T) {
	t.Parallel()

	e := newTestServer(&fakeAuth{})
	w := post(e, "/v1/auth/register", `{"email":"taken@example.com","password":"pw"}`, "")

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}
