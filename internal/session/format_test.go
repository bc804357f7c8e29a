package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"prediction-platform/internal/identity"

	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Unknown error occurred"},
		{"login in progress", ErrLoginInProgress, "A login is already in progress."},
		{
			"supabase bad credentials",
			identity.NewError(http.StatusBadRequest, identity.CodeInvalidCredential, "Invalid login credentials"),
			"Invalid email or password. Please check your credentials and try again.",
		},
		{
			"api bad credentials",
			identity.NewError(http.StatusUnauthorized, identity.CodeInvalidCredential, "Invalid email or password"),
			"Invalid email or password. Please check your credentials and try again.",
		},
		{
			"unconfirmed",
			identity.NewError(http.StatusBadRequest, "email_not_confirmed", "Email not confirmed"),
			"Please check your email and click the confirmation link before signing in.",
		},
		{
			"duplicate",
			identity.NewError(http.StatusConflict, "conflict", "Email already registered"),
			"An account with this email already exists. Try signing in instead.",
		},
		{
			"weak password",
			identity.NewError(http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters."),
			"Password must be at least 6 characters long and include a letter and a number.",
		},
		{
			"banned keeps reason",
			identity.NewError(http.StatusForbidden, "forbidden", "Account is banned: spam"),
			"Account is banned: spam",
		},
		{
			"validation passes through",
			identity.NewError(http.StatusBadRequest, identity.CodeValidation, "Validation failed: Invalid phone number"),
			"Validation failed: Invalid phone number",
		},
		{
			"network",
			identity.AsError(errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")),
			"Unable to reach the server. Check your connection and try again.",
		},
		{
			"timeout",
			identity.AsError(fmt.Errorf("get: %w", context.DeadlineExceeded)),
			"Unable to reach the server. Check your connection and try again.",
		},
		{
			"unknown server error",
			identity.NewError(http.StatusInternalServerError, "server_error", "pq: relation users does not exist"),
			"An error occurred. Please try again.",
		},
		{"plain error in table", errors.New("not authenticated"), "Please sign in to continue."},
		{"plain error", ErrNoUserData, "An error occurred. Please try again."},
		{"wrapped", fmt.Errorf("login: %w", identity.ErrNotAuthenticated), "Please sign in to continue."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatError(tt.err))
		})
	}
}
