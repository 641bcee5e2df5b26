// Package middleware contains reusable HTTP middleware: bearer-token
// authentication and Redis-backed rate limiting.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Context keys populated by BearerAuth for downstream handlers.
const (
	ctxSubjectID = "subject_id"
	ctxTokenID   = "token_id"
	ctxRawToken  = "raw_token"
)

// Validator checks an access token and returns its subject and token ID.
type Validator interface {
	Validate(ctx context.Context, raw string) (uint64, string, error)
}

// Skipper reports whether a request targets an anonymous route and should
// bypass token processing entirely.
type Skipper func(c echo.Context) bool

// BearerAuth validates the Authorization bearer on every request except
// those the skipper marks anonymous. A missing, malformed, expired or
// revoked token is rejected with 401 before any handler runs; on success
// the subject ID, token ID and raw token are stored in the context.
func BearerAuth(v Validator, skip Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			subjectID, tokenID, err := v.Validate(c.Request().Context(), raw)
			if err != nil {
				c.Response().Header().Set("Authorization", "")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(ctxSubjectID, subjectID)
			c.Set(ctxTokenID, tokenID)
			c.Set(ctxRawToken, raw)
			return next(c)
		}
	}
}

// SubjectID returns the authenticated user ID stored by BearerAuth.
func SubjectID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxSubjectID).(uint64)
	return id, ok
}

// TokenID returns the jti of the validated bearer, if any.
func TokenID(c echo.Context) string {
	id, _ := c.Get(ctxTokenID).(string)
	return id
}

// RawToken returns the validated bearer string, if any.
func RawToken(c echo.Context) string {
	raw, _ := c.Get(ctxRawToken).(string)
	return raw
}
