package session

import (
	"errors"
	"strings"

	"prediction-platform/internal/identity"
)

const genericErrorMessage = "An error occurred. Please try again."

type errorCopy struct {
	match   string
	message string
}

// errorTable maps provider messages (matched case-insensitively as
// substrings) to text shown to the user. Order matters: the first match wins.
var errorTable = []errorCopy{
	{"invalid login credentials", "Invalid email or password. Please check your credentials and try again."},
	{"invalid email or password", "Invalid email or password. Please check your credentials and try again."},
	{"email not confirmed", "Please check your email and click the confirmation link before signing in."},
	{"user already registered", "An account with this email already exists. Try signing in instead."},
	{"email already registered", "An account with this email already exists. Try signing in instead."},
	{"username already taken", "That username is already taken. Please choose another one."},
	{"current password is incorrect", "Your current password is incorrect."},
	{"password should be at least", "Password must be at least 6 characters long and include a letter and a number."},
	{"password must", "Password must be at least 6 characters long and include a letter and a number."},
	{"password is too weak", "Password must be at least 6 characters long and include a letter and a number."},
	{"invalid or expired reset token", "This reset link is invalid or has expired. Please request a new one."},
	{"email link is invalid or has expired", "This reset link is invalid or has expired. Please request a new one."},
	{"account is deactivated", "Your account has been deactivated. Please contact support."},
	{"email rate limit exceeded", "Too many emails sent. Please wait before requesting another reset."},
	{"rate limit exceeded", "Too many attempts. Please wait a moment before trying again."},
	{"too many requests", "Too many attempts. Please wait a moment before trying again."},
	{"not authenticated", "Please sign in to continue."},
}

// FormatError turns err into a message fit for display. Anything not in the
// table falls back to a generic message, except validation failures, whose
// text tells the user what to fix.
func FormatError(err error) string {
	if err == nil {
		return "Unknown error occurred"
	}
	if errors.Is(err, ErrLoginInProgress) {
		return "A login is already in progress."
	}

	var e *identity.Error
	if !errors.As(err, &e) {
		if text, ok := lookup(err.Error()); ok {
			return text
		}
		return genericErrorMessage
	}

	if identity.IsNetwork(e) {
		return "Unable to reach the server. Check your connection and try again."
	}
	// The ban reason is part of the server message and is shown as is.
	if strings.HasPrefix(strings.ToLower(e.Message), "account is banned") {
		return e.Message
	}
	if text, ok := lookup(e.Message); ok {
		return text
	}
	if e.Code == identity.CodeValidation && e.Message != "" {
		return e.Message
	}
	return genericErrorMessage
}

func lookup(message string) (string, bool) {
	msg := strings.ToLower(message)
	for _, entry := range errorTable {
		if strings.Contains(msg, entry.match) {
			return entry.message, true
		}
	}
	return "", false
}
