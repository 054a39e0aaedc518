package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")

	// ErrMissingCredential is returned when the request carries no bearer token.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthorized)
	// ErrInvalidCredential is returned when the bearer token cannot be trusted
	// or no account backs it.
	ErrInvalidCredential = fmt.Errorf("%w: invalid credential", ErrUnauthorized)
)

// Token verification failures. Callers outside this package should treat all of
// them as ErrInvalidToken; the precise cause is for server-side logs.
var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrTokenMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrTokenSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrTokenExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
)
