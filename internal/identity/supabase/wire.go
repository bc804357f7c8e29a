package supabase

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"prediction-platform/internal/identity"
)

type gotrueUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Role             string         `json:"role"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at"`
	CreatedAt        *time.Time     `json:"created_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
	AppMetadata      map[string]any `json:"app_metadata"`
}

func (u *gotrueUser) toIdentity() *identity.User {
	if u == nil || u.ID == "" {
		return nil
	}
	out := &identity.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: metaString(u.UserMetadata, "first_name"),
		LastName:  metaString(u.UserMetadata, "last_name"),
		Username:  metaString(u.UserMetadata, "username"),
		AvatarURL: metaString(u.UserMetadata, "avatar_url"),
		Points:    metaInt(u.UserMetadata, "points", 100),
		Role:      metaString(u.AppMetadata, "role"),
		CreatedAt: u.CreatedAt,
	}
	if out.Role == "" {
		out.Role = "user"
	}
	if u.EmailConfirmedAt != nil {
		out.Status = 1
	}
	return out
}

// sessionPayload is the token grant response. Sign up returns the same shape
// when email confirmation is disabled and a bare user otherwise; embedding
// gotrueUser lets one decode handle both.
type sessionPayload struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`
	gotrueUser
}

func (p *sessionPayload) toSession(now time.Time) *identity.Session {
	if p.AccessToken == "" {
		return nil
	}
	s := &identity.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         p.User.toIdentity(),
	}
	switch {
	case p.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(p.ExpiresAt, 0)
	case p.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(p.ExpiresIn) * time.Second)
	}
	return s
}

func (p *sessionPayload) user() *identity.User {
	if p.User != nil {
		return p.User.toIdentity()
	}
	return p.gotrueUser.toIdentity()
}

type userAttributes struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// gotrueError covers the error bodies GoTrue has used across versions.
type gotrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeError(status int, body []byte) *identity.Error {
	var e gotrueError
	if err := json.Unmarshal(body, &e); err != nil {
		return nil
	}

	message := firstNonEmpty(e.Msg, e.Message, e.ErrorDescription, e.Error)
	if message == "" {
		return nil
	}

	code := e.ErrorCode
	if code == "" {
		if s, ok := e.Code.(string); ok {
			code = s
		}
	}
	if code == "" && e.Error != "" && e.Error != message {
		code = e.Error
	}
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}

	// Older servers answer a bad password with 400 invalid_grant.
	if code == "invalid_grant" && strings.Contains(strings.ToLower(message), "credentials") {
		code = identity.CodeInvalidCredential
	}
	return identity.NewError(status, code, message)
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func metaInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
