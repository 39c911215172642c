package engine

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers. GATEWAY_UNAVAILABLE is the only condition
// worth retrying; everything else is a definitive answer.
const (
	CodeInvalidTime        = "INVALID_TIME"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeVenueUnavailable   = "VENUE_TEMPORARILY_UNAVAILABLE"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeForbidden          = "FORBIDDEN"
)

// Error carries a machine-readable code next to the human message.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the error code, or empty for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
