package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeValidation = "VALIDATION_ERROR"
	CodeConflict   = "CONFLICT"
	CodeAuth       = "AUTH_ERROR"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeServer     = "SERVER_ERROR"
)

var (
	ErrInvalidCredentials      = NewAuthError("Invalid email or password")
	ErrInvalidToken            = NewAuthError("Invalid or expired token")
	ErrUnauthorized            = NewAuthError("Unauthorized access")
	ErrInsufficientPermissions = NewForbiddenError("Insufficient permissions")

	ErrUserNotFound  = NewNotFoundError("User not found")
	ErrEmailTaken    = NewConflictError("Email already registered")
	ErrUsernameTaken = NewConflictError("Username already taken")
	ErrUserInactive  = NewForbiddenError("Account is deactivated")

	ErrResetTokenInvalid  = NewValidationError("Invalid or expired reset token")
	ErrVerifyTokenInvalid = NewValidationError("Invalid verification token")
	ErrCurrentPassword    = NewAuthError("Current password is incorrect")
	ErrNoFieldsToUpdate   = NewValidationError("No valid fields to update")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type AppError struct {
	Code    string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to the status code sent to clients.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewValidationError(message string, fields ...FieldError) *AppError {
	return &AppError{Code: CodeValidation, Message: message, Fields: fields}
}

// NewFieldsError builds a validation error whose message summarizes every
// field error.
func NewFieldsError(fields []FieldError) *AppError {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Message)
	}
	return &AppError{Code: CodeValidation, Message: strings.Join(parts, "; "), Fields: fields}
}

func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

func NewAuthError(message string) *AppError {
	return &AppError{Code: CodeAuth, Message: message}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{Code: CodeForbidden, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewServerError wraps an internal failure. The cause is kept for logging and
// never sent to clients.
func NewServerError(message string, err error) *AppError {
	return &AppError{Code: CodeServer, Message: message, Err: err}
}

// NewBannedError builds the forbidden error for a banned account.
func NewBannedError(reason string) *AppError {
	if strings.TrimSpace(reason) == "" {
		reason = "No reason provided"
	}
	return NewForbiddenError("Account is banned: " + reason)
}

// As is a shorthand for errors.As on *AppError.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
