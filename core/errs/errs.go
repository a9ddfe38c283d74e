// Package errs holds the error values shared by the server and the client.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request that can never succeed as sent.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden is returned when the caller does not own the resource.
	// Its text is the only thing ever shown to the caller.
	ErrForbidden = errors.New("unauthorized")
	ErrNotFound  = errors.New("not found")
	// ErrNetwork wraps transport failures seen by the client.
	ErrNetwork = errors.New("network error")
	// ErrUnsupported is returned by controls the active backend does not have.
	ErrUnsupported = errors.New("unsupported by backend")
)

// RateLimitError is the expected outcome of appending too often.
type RateLimitError struct {
	WaitMinutes int
}

func (e *RateLimitError) Error() string {
	unit := "minute"
	if e.WaitMinutes > 1 {
		unit = "minutes"
	}
	return fmt.Sprintf("Rate limit exceeded. Please wait %d %s before adding more songs.", e.WaitMinutes, unit)
}

// Validation returns an ErrValidation carrying a reason.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AsRateLimit unwraps a *RateLimitError from err.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
