package cli

import (
	"context"
	"fmt"

	"prediction-platform/internal/identity"
)

type command struct {
	help string
	run  func(a *App, ctx context.Context) error
}

var commandOrder = []string{
	"signup",
	"login",
	"logout",
	"whoami",
	"forgot-password",
	"reset-password",
	"change-password",
}

var commands = map[string]command{
	"signup":          {"Create an account", (*App).signup},
	"login":           {"Sign in with email and password", (*App).login},
	"logout":          {"Sign out and forget the local session", (*App).logout},
	"whoami":          {"Show the signed-in user", (*App).whoami},
	"forgot-password": {"Email a password reset link", (*App).forgotPassword},
	"reset-password":  {"Set a new password with a reset token", (*App).resetPassword},
	"change-password": {"Change the password of the signed-in user", (*App).changePassword},
}

var (
	errPasswordMismatch = identity.NewError(0, identity.CodeValidation, "Passwords do not match")
	errPasswordRequired = identity.NewError(0, identity.CodeValidation, "Password is required")
)

func (a *App) signup(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	first, err := a.prompt("First name")
	if err != nil {
		return err
	}
	last, err := a.prompt("Last name")
	if err != nil {
		return err
	}
	username, err := a.prompt("Username (optional)")
	if err != nil {
		return err
	}
	password, err := a.newPassword("Password")
	if err != nil {
		return err
	}

	user, err := a.manager.Signup(ctx, email, password, identity.Profile{
		FirstName: first,
		LastName:  last,
		Username:  username,
	})
	if err != nil {
		return err
	}

	if a.manager.IsAuthenticated() {
		fmt.Fprintf(a.out, "Welcome, %s! You are signed in.\n", user.DisplayName())
		return nil
	}
	fmt.Fprintf(a.out, "Account created for %s. Check your email to verify it before signing in.\n", user.Email)
	return nil
}

func (a *App) login(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	password, err := a.promptPassword("Password")
	if err != nil {
		return err
	}

	user, err := a.manager.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s (%d points)\n", user.DisplayName(), user.Points)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) whoami(context.Context) error {
	user := a.manager.CurrentUser()
	if user == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}

	fmt.Fprintf(a.out, "%s <%s>\n", user.DisplayName(), user.Email)
	if user.Username != "" {
		fmt.Fprintf(a.out, "Username: %s\n", user.Username)
	}
	fmt.Fprintf(a.out, "Points:   %d\n", user.Points)
	status := "pending verification"
	if user.Status == 1 {
		status = "verified"
	}
	fmt.Fprintf(a.out, "Status:   %s\n", status)
	if user.Role == "admin" {
		fmt.Fprintln(a.out, "Role:     admin")
	}
	return nil
}

func (a *App) forgotPassword(ctx context.Context) error {
	email, err := a.prompt("Email")
	if err != nil {
		return err
	}
	msg, err := a.manager.ResetPassword(ctx, email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

func (a *App) resetPassword(ctx context.Context) error {
	token, err := a.prompt("Reset token")
	if err != nil {
		return err
	}
	password, err := a.newPassword("New password")
	if err != nil {
		return err
	}
	if err := a.manager.CompletePasswordReset(ctx, token, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password reset. You can now sign in with the new password.")
	return nil
}

func (a *App) changePassword(ctx context.Context) error {
	if !a.manager.IsAuthenticated() {
		return identity.ErrNotAuthenticated
	}
	current, err := a.promptPassword("Current password")
	if err != nil {
		return err
	}
	password, err := a.newPassword("New password")
	if err != nil {
		return err
	}
	if err := a.manager.UpdatePassword(ctx, password, current); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

// newPassword asks twice and fails when the entries differ.
func (a *App) newPassword(label string) (string, error) {
	first, err := a.promptPassword(label)
	if err != nil {
		return "", err
	}
	second, err := a.promptPassword("Confirm " + lowerFirst(label))
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	if first == "" {
		return "", errPasswordRequired
	}
	return first, nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
