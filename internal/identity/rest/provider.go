// Package rest implements identity.Provider on top of this repository's
// /api/users HTTP API.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"prediction-platform/internal/identity"
)

const (
	basePath      = "/api/users"
	refreshLeeway = 30 * time.Second
)

type Provider struct {
	transport *identity.Transport
	listener  identity.Listener

	mu      sync.Mutex
	session *identity.Session

	now func() time.Time
}

var _ identity.Provider = (*Provider)(nil)

// New returns a provider for the API served at baseURL, for example
// http://localhost:8080.
func New(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		transport: identity.NewTransport(baseURL, timeout, decodeError),
		now:       time.Now,
	}
}

// Transport exposes the underlying client, mainly so tests can swap it.
func (p *Provider) Transport() *identity.Transport {
	return p.transport
}

func (p *Provider) SignUp(ctx context.Context, email, password string, profile identity.Profile) (*identity.SignUpResult, error) {
	body := signupBody{
		Email:     email,
		Password:  password,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Username:  profile.Username,
	}

	var created apiUser
	if err := p.call(ctx, identity.Request{Method: http.MethodPost, Path: basePath + "/signup", Body: body}, &created); err != nil {
		return nil, err
	}
	return &identity.SignUpResult{User: created.toIdentity()}, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	var auth authPayload
	err := p.call(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   basePath + "/login",
		Body:   map[string]string{"email": email, "password": password},
	}, &auth)
	if err != nil {
		return nil, err
	}

	session := auth.toSession()
	p.setSession(session)
	p.listener.Emit(identity.EventSignedIn, session)
	return session, nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	session := p.takeSession()
	if session == nil {
		return nil
	}
	defer p.listener.Emit(identity.EventSignedOut, nil)

	return p.call(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   basePath + "/logout",
		Header: identity.BearerHeader(session.AccessToken),
		Body:   map[string]string{"refresh_token": session.RefreshToken},
	}, nil)
}

func (p *Provider) GetSession(ctx context.Context) (*identity.Session, error) {
	session := p.currentSession()
	if session == nil {
		return nil, nil
	}

	if session.Expired(p.now(), refreshLeeway) {
		refreshed, err := p.refresh(ctx, session)
		if err != nil {
			return p.dropIfRejected(err)
		}
		session = refreshed
	}

	var me apiUser
	err := p.call(ctx, identity.Request{
		Method: http.MethodGet,
		Path:   basePath + "/me",
		Header: identity.BearerHeader(session.AccessToken),
	}, &me)
	if err != nil {
		return p.dropIfRejected(err)
	}

	updated := *session
	updated.User = me.toIdentity()
	p.setSession(&updated)
	return &updated, nil
}

func (p *Provider) SetSession(session *identity.Session) {
	p.setSession(session)
}

// ResetPasswordForEmail asks the API to mail a reset link. The link target is
// configured on the server, so redirectTo is not sent.
func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, _ string) error {
	return p.call(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   basePath + "/forgot-password",
		Body:   map[string]string{"email": email},
	}, nil)
}

func (p *Provider) UpdateUser(ctx context.Context, update identity.UserUpdate) (*identity.User, error) {
	if update.Password != nil && update.RecoveryToken != "" {
		if err := p.call(ctx, identity.Request{
			Method: http.MethodPost,
			Path:   basePath + "/reset-password",
			Body:   map[string]string{"token": update.RecoveryToken, "password": *update.Password},
		}, nil); err != nil {
			return nil, err
		}
		return nil, nil
	}

	session := p.currentSession()
	if session == nil {
		return nil, identity.ErrNotAuthenticated
	}
	auth := identity.BearerHeader(session.AccessToken)

	if update.Password != nil {
		if update.CurrentPassword == "" {
			return nil, identity.NewError(http.StatusBadRequest, identity.CodeValidation, "Current password is required")
		}
		if err := p.call(ctx, identity.Request{
			Method: http.MethodPost,
			Path:   basePath + "/change-password",
			Header: auth,
			Body: map[string]string{
				"current_password": update.CurrentPassword,
				"new_password":     *update.Password,
			},
		}, nil); err != nil {
			return nil, err
		}
	}

	fields := profileBody{
		Email:     update.Email,
		FirstName: update.FirstName,
		LastName:  update.LastName,
		Username:  update.Username,
	}
	if fields.empty() {
		return session.User, nil
	}

	var updated apiUser
	if err := p.call(ctx, identity.Request{
		Method: http.MethodPut,
		Path:   basePath + "/profile",
		Header: auth,
		Body:   fields,
	}, &updated); err != nil {
		return nil, err
	}

	user := updated.toIdentity()
	next := *session
	next.User = user
	p.setSession(&next)
	p.listener.Emit(identity.EventUserUpdated, &next)
	return user, nil
}

func (p *Provider) OnAuthStateChange(cb identity.AuthStateCallback) func() {
	return p.listener.Set(cb)
}

func (p *Provider) refresh(ctx context.Context, session *identity.Session) (*identity.Session, error) {
	if session.RefreshToken == "" {
		return nil, identity.ErrNotAuthenticated
	}

	var tokens tokenPayload
	if err := p.call(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   basePath + "/refresh",
		Body:   map[string]string{"refresh_token": session.RefreshToken},
	}, &tokens); err != nil {
		return nil, err
	}

	refreshed := &identity.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    unixTime(tokens.ExpiresAt),
		User:         session.User,
	}
	p.setSession(refreshed)
	p.listener.Emit(identity.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// dropIfRejected clears the session when the server refused the tokens and
// passes every other failure through.
func (p *Provider) dropIfRejected(err error) (*identity.Session, error) {
	if identity.IsStatus(err, http.StatusUnauthorized) || identity.IsStatus(err, http.StatusForbidden) {
		if p.takeSession() != nil {
			p.listener.Emit(identity.EventSignedOut, nil)
		}
		return nil, nil
	}
	return nil, err
}

func (p *Provider) call(ctx context.Context, req identity.Request, out any) error {
	var env envelope
	if err := p.transport.Do(ctx, req, &env); err != nil {
		return err
	}
	if !env.Status {
		return identity.NewError(http.StatusOK, "request_failed", env.Message)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &identity.Error{Code: identity.CodeInvalidResponse, Message: "Invalid response from server", Err: err}
	}
	return nil
}

func (p *Provider) currentSession() *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *Provider) setSession(s *identity.Session) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()
}

func (p *Provider) takeSession() *identity.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.session
	p.session = nil
	return s
}

func decodeError(status int, body []byte) *identity.Error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Message == "" {
		return nil
	}

	message := env.Message
	if len(env.Errors) > 0 {
		parts := make([]string, 0, len(env.Errors))
		for _, fe := range env.Errors {
			parts = append(parts, fe.Message)
		}
		message += ": " + strings.Join(parts, "; ")
	}
	return identity.NewError(status, codeForStatus(status), message)
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return identity.CodeValidation
	case http.StatusUnauthorized:
		return identity.CodeInvalidCredential
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return "server_error"
}
