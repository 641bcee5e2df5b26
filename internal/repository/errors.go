// Package repository defines sentinel error values reused across
// repositories. Higher layers compare against them with errors.Is and
// translate them into HTTP responses at the boundary.
package repository

import "errors"

// ErrInvalidOperation is returned by the refresh-token rotation path when
// the presented token is unknown, expired, or already consumed. The three
// cases are deliberately indistinguishable to the caller; handlers
// translate this into an HTTP 401 with the bearer header cleared.
var ErrInvalidOperation = errors.New("invalid operation")

// ErrInvalidSubject is returned when an access token cannot be mapped to a
// live user while generating a refresh token. Unlike ErrInvalidOperation
// this indicates a server-side consistency fault, not a client error, and
// handlers report it as HTTP 500.
var ErrInvalidSubject = errors.New("invalid subject")

// ErrEmailExists is returned by user creation when the normalized email
// collides with an existing row. Handlers translate this into HTTP 409.
var ErrEmailExists = errors.New("email already exists")
