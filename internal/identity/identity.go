// Package identity defines the client-side contract for an identity provider
// and the pieces shared by its implementations.
//
// Two providers exist: identity/rest talks to this repository's HTTP API and
// identity/supabase talks to a hosted GoTrue service. Callers work against
// Provider and never branch on which one is active.
package identity

import (
	"context"
	"time"
)

type AuthEvent string

const (
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// User is the provider-neutral view of an account.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Username  string     `json:"username,omitempty"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Points    int        `json:"points"`
	Status    int        `json:"status"`
	Role      string     `json:"role,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	}
	return u.Email
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// Expired reports whether the access token is past, or within leeway of, its
// expiry. A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// Profile carries the optional fields sent at sign up.
type Profile struct {
	FirstName string
	LastName  string
	Username  string
}

// UserUpdate describes a change to the signed-in account. Nil fields are left
// untouched.
//
// CurrentPassword is required by providers that re-authenticate a password
// change. RecoveryToken switches a password change to the emailed reset flow,
// in which case no session is needed.
type UserUpdate struct {
	Email           *string
	Password        *string
	CurrentPassword string
	RecoveryToken   string
	FirstName       *string
	LastName        *string
	Username        *string
}

// SignUpResult holds the created user. Session is set only when the provider
// signs the user in immediately (no email confirmation step).
type SignUpResult struct {
	User    *User
	Session *Session
}

type AuthStateCallback func(event AuthEvent, session *Session)

// Provider is implemented by every identity backend. Errors returned by its
// methods are always *Error.
type Provider interface {
	SignUp(ctx context.Context, email, password string, profile Profile) (*SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignOut drops the local session even when the remote call fails.
	SignOut(ctx context.Context) error
	// GetSession returns the current session, refreshing the access token if
	// needed. It returns (nil, nil) when nobody is signed in or the session
	// was rejected by the server.
	GetSession(ctx context.Context) (*Session, error)
	// SetSession installs tokens restored from a session store.
	SetSession(session *Session)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, update UserUpdate) (*User, error)
	// OnAuthStateChange replaces any previous callback. The returned function
	// removes the callback if it is still the registered one.
	OnAuthStateChange(cb AuthStateCallback) (unsubscribe func())
}
