package helper

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is, never by message.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInvalidInput = errors.New("invalid input")
)

// NewError wraps err with the name of the operation that failed.
// It returns nil if err is nil.
func NewError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Errorf creates an error of the given kind with a formatted description.
func Errorf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns a short name for the kind of err, used in telemetry and logs.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnsupported):
		return "unsupported"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
