package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

const (
	CodeNetwork           = "network_error"
	CodeTimeout           = "timeout"
	CodeNotAuthenticated  = "not_authenticated"
	CodeInvalidResponse   = "invalid_response"
	CodeValidation        = "validation_failed"
	CodeInvalidCredential = "invalid_credentials"
)

// Error is the normalized failure shape of every provider. Status is the HTTP
// status of the response, or 0 when no response was received.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure came from the network or the server
// rather than from the request itself.
func (e *Error) Transient() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// ErrNotAuthenticated is returned by operations that need a session when
// none is present.
var ErrNotAuthenticated = NewError(http.StatusUnauthorized, CodeNotAuthenticated, "Not authenticated")

// AsError returns err as *Error, wrapping foreign errors as network failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Code: CodeTimeout, Message: "Request timed out", Err: err}
	}
	return &Error{Code: CodeNetwork, Message: "Network error: " + err.Error(), Err: err}
}

// IsStatus reports whether err is an *Error with the given HTTP status.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
