package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewValidationError("v"), http.StatusBadRequest},
		{NewConflictError("c"), http.StatusConflict},
		{NewAuthError("a"), http.StatusUnauthorized},
		{NewForbiddenError("f"), http.StatusForbidden},
		{NewNotFoundError("n"), http.StatusNotFound},
		{NewServerError("s", nil), http.StatusInternalServerError},
		{NewAppError("SOMETHING_ELSE", "x", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestAppError_WrapsCause(t *testing.T) {
	cause := errors.New("pq: deadlock")
	err := fmt.Errorf("signup: %w", NewServerError("Failed to create user", cause))

	assert.ErrorIs(t, err, cause)
	appErr, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "Failed to create user: pq: deadlock", appErr.Error())

	_, ok = As(cause)
	assert.False(t, ok)
}

func TestNewFieldsError(t *testing.T) {
	err := NewFieldsError([]FieldError{
		{Field: "email", Message: "email is required"},
		{Field: "password", Message: "password is required"},
	})

	assert.Equal(t, CodeValidation, err.Code)
	assert.Equal(t, "email is required; password is required", err.Message)
	assert.Len(t, err.Fields, 2)
}

func TestNewBannedError(t *testing.T) {
	assert.Equal(t, "Account is banned: cheating", NewBannedError("cheating").Message)
	assert.Equal(t, "Account is banned: No reason provided", NewBannedError("  ").Message)
	assert.Equal(t, http.StatusForbidden, NewBannedError("x").HTTPStatus())
}
