// Package apperr defines the error kinds surfaced at the HTTP boundary.
// Packages wrap one of the kinds with fmt.Errorf("%w: ...") and handlers map
// the result to a status with Status.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthentication = errors.New("authentication error")
	ErrForbidden      = errors.New("forbidden")
	ErrRateLimited    = errors.New("rate limited")
	ErrUpstream       = errors.New("upstream error")
	ErrValidation     = errors.New("validation error")
)

// Status maps err to an HTTP status code. Unknown errors map to 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		// configuration and upstream failures are both reported as 500
		return http.StatusInternalServerError
	}
}
