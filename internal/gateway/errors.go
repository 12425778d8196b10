package gateway

import (
	"errors"
	"fmt"
)

// Error kinds returned by every Gateway implementation. Callers match them
// with errors.Is; implementations wrap them with context.
var (
	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness rule or a revision check failed.
	ErrConflict = errors.New("conflict")
	// ErrInvalid means the request failed validation.
	ErrInvalid = errors.New("invalid request")
	// ErrUnauthorized means there is no usable session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransient means the call may succeed if retried.
	ErrTransient = errors.New("transient failure")
)

// Invalidf wraps ErrInvalid with a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Kind returns the sentinel err wraps, or nil for unclassified errors.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrConflict, ErrInvalid, ErrUnauthorized, ErrTransient} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
