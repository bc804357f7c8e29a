package rest

import (
	"encoding/json"
	"time"

	"prediction-platform/internal/identity"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type signupBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username,omitempty"`
}

type profileBody struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
}

func (b profileBody) empty() bool {
	return b.Email == nil && b.FirstName == nil && b.LastName == nil && b.Username == nil
}

type apiUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  *string   `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	AvatarURL *string   `json:"avatar_url"`
	Points    int       `json:"points"`
	Status    int       `json:"status"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *apiUser) toIdentity() *identity.User {
	if u == nil || u.ID == "" {
		return nil
	}
	out := &identity.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Points:    u.Points,
		Status:    u.Status,
		Role:      u.Role,
	}
	if u.Username != nil {
		out.Username = *u.Username
	}
	if u.AvatarURL != nil {
		out.AvatarURL = *u.AvatarURL
	}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		out.CreatedAt = &created
	}
	return out
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

type authPayload struct {
	tokenPayload
	User *apiUser `json:"user"`
}

func (a *authPayload) toSession() *identity.Session {
	return &identity.Session{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    unixTime(a.ExpiresAt),
		User:         a.User.toIdentity(),
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
