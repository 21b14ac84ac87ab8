package daemon

import (
	"errors"
	"fmt"
)

// Well-known daemon error codes. Anything else is passed through verbatim.
const (
	CodeUnavailable    = -1 // transport failure, daemon not reachable
	CodeBadRequest     = 400
	CodeNotFound       = 404
	CodePackageInvalid = 422
	CodeInternal       = 500
)

// Error is the normalized form of every failure the daemon reports. The
// orchestration layer never inspects daemon wire formats, only this type.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin daemon error (code %d): %s", e.Code, e.Message)
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// unavailable wraps a transport-level failure.
func unavailable(err error) *Error {
	return &Error{Code: CodeUnavailable, Message: err.Error()}
}

// AsError extracts a *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsNotFound reports whether the daemon answered "no such resource".
func IsNotFound(err error) bool {
	de, ok := AsError(err)
	return ok && de.Code == CodeNotFound
}

// IsUnavailable reports whether the daemon could not be reached at all.
func IsUnavailable(err error) bool {
	de, ok := AsError(err)
	return ok && de.Code == CodeUnavailable
}
