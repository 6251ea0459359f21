package core

import (
	"context"
	"errors"
	"strings"
)

// Error codes for domain errors.
const (
	ErrCodeUnauthenticated = "unauthenticated"
	ErrCodeForbidden       = "forbidden"
	ErrCodeNotFound        = "not_found"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeInternal        = "internal"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrBadRequest        = errors.New("bad request")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstream          = errors.New("upstream error")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// toCoreError classifies err for the client. Unknown errors are reported as
// "internal error" so store details never reach the wire; the second return
// value says whether err was a recognised domain error.
func toCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return coreError(ErrCodeUnauthenticated, err.Error()), true
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error()), true
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error()), true
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidTransition):
		return coreError(ErrCodeBadRequest, err.Error()), true
	case errors.Is(err, context.Canceled):
		return coreError(ErrCodeInternal, "request cancelled"), true
	default:
		return coreError(ErrCodeInternal, "internal error"), false
	}
}

// IsUpstreamFailure reports whether err came from the AI collaborator.
func IsUpstreamFailure(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrUpstreamTimeout)
}

func trimmed(s string) bool {
	return strings.TrimSpace(s) != ""
}
