package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/windcore/authsvc/internal/middleware"
	"github.com/windcore/authsvc/internal/model"
	"github.com/windcore/authsvc/internal/repository"
	"github.com/windcore/authsvc/internal/service"
)

// AuthAPI is the orchestrator surface the handler calls.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*model.User, *repository.TokenPair, error)
	Logout(ctx context.Context, rawAccess string, subjectID uint64) error
	Refresh(ctx context.Context, rawValue string) (*repository.TokenPair, error)
}

// Registrar is the identity-store surface used by the register endpoint.
type Registrar interface {
	Create(ctx context.Context, email, password string) (*model.User, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth  AuthAPI
	Users Registrar
}

func NewAuthHandler(auth AuthAPI, users Registrar) *AuthHandler {
	return &AuthHandler{Auth: auth, Users: users}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Type      string    `json:"type"` // "access" | "refresh"
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}
type tokensResp struct {
	Success bool        `json:"success"`
	Tokens  []tokenPart `json:"tokens"`
}

func pairResponse(pair *repository.TokenPair) tokensResp {
	return tokensResp{
		Success: true,
		Tokens: []tokenPart{
			{Type: "access", Value: pair.Access.Value, ExpiresAt: pair.Access.ExpiresAt},
			{Type: "refresh", Value: pair.RefreshValue, ExpiresAt: pair.Refresh.ExpiresAt},
		},
	}
}

// noTokenResponse clears the bearer header so a failed call can never
// hand back a reusable credential, then writes the appropriate status.
func noTokenResponse(c echo.Context, unauthorized bool) error {
	c.Response().Header().Set("Authorization", "")
	status := http.StatusOK
	if unauthorized {
		status = http.StatusUnauthorized
	}
	return c.JSON(status, tokensResp{Success: false, Tokens: []tokenPart{}})
}

// Register delegates to the identity store. Anonymous.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": u.ID, "email": u.Email})
}

// Login verifies credentials and returns the access/refresh pair. Any
// credential failure gets the same generic 401 with no token attached.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	_, pair, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return noTokenResponse(c, true)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	return c.JSON(http.StatusOK, pairResponse(pair))
}

// Logout revokes the presented bearer and soft-deletes the subject's
// refresh tokens. Protected: the middleware has already validated the
// bearer and stored the subject in context.
func (h *AuthHandler) Logout(c echo.Context) error {
	subjectID, ok := middleware.SubjectID(c)
	if !ok {
		return noTokenResponse(c, true)
	}
	raw := middleware.RawToken(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.Logout(ctx, raw, subjectID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return noTokenResponse(c, false)
}

// Refresh exchanges a refresh token for a new pair via the rotation
// protocol. An invalid, expired or consumed token maps to 401 with the
// header cleared; internal faults stay 500.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidOperation) {
			return noTokenResponse(c, true)
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, pairResponse(pair))
}
