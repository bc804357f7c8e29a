// Package supabase implements identity.Provider against a hosted Supabase
// (GoTrue) auth service, plus the service-role admin client used by the
// server to delete accounts.
package supabase

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"prediction-platform/internal/identity"
)

const (
	authPath      = "/auth/v1"
	refreshLeeway = 30 * time.Second
)

type Provider struct {
	transport *identity.Transport
	anonKey   string
	listener  identity.Listener

	mu      sync.Mutex
	session *identity.Session

	now func() time.Time
}

var _ identity.Provider = (*Provider)(nil)

func New(projectURL, anonKey string, timeout time.Duration) *Provider {
	return &Provider{
		transport: identity.NewTransport(projectURL, timeout, decodeError),
		anonKey:   anonKey,
		now:       time.Now,
	}
}

func (p *Provider) Transport() *identity.Transport {
	return p.transport
}

func (p *Provider) SignUp(ctx context.Context, email, password string, profile identity.Profile) (*identity.SignUpResult, error) {
	data := map[string]any{}
	if profile.FirstName != "" {
		data["first_name"] = profile.FirstName
	}
	if profile.LastName != "" {
		data["last_name"] = profile.LastName
	}
	if profile.Username != "" {
		data["username"] = profile.Username
	}

	var payload sessionPayload
	err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   authPath + "/signup",
		Header: p.headers(""),
		Body: map[string]any{
			"email":    email,
			"password": password,
			"data":     data,
		},
	}, &payload)
	if err != nil {
		return nil, err
	}

	result := &identity.SignUpResult{User: payload.user()}
	if session := payload.toSession(p.now()); session != nil {
		p.setSession(session)
		p.listener.Emit(identity.EventSignedIn, session)
		result.Session = session
	}
	return result, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	session, err := p.grant(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
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

	err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   authPath + "/logout",
		Header: p.headers(session.AccessToken),
	}, nil)
	// The token may already be gone server side; the local session is cleared
	// either way.
	if identity.IsStatus(err, http.StatusUnauthorized) || identity.IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (p *Provider) GetSession(ctx context.Context) (*identity.Session, error) {
	session := p.currentSession()
	if session == nil {
		return nil, nil
	}

	if session.Expired(p.now(), refreshLeeway) {
		if session.RefreshToken == "" {
			return p.drop(), nil
		}
		refreshed, err := p.grant(ctx, "refresh_token", map[string]string{"refresh_token": session.RefreshToken})
		if err != nil {
			if rejected(err) {
				return p.drop(), nil
			}
			return nil, err
		}
		p.setSession(refreshed)
		p.listener.Emit(identity.EventTokenRefreshed, refreshed)
		session = refreshed
	}

	var user gotrueUser
	err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodGet,
		Path:   authPath + "/user",
		Header: p.headers(session.AccessToken),
	}, &user)
	if err != nil {
		if rejected(err) {
			return p.drop(), nil
		}
		return nil, err
	}

	updated := *session
	updated.User = user.toIdentity()
	p.setSession(&updated)
	return &updated, nil
}

func (p *Provider) SetSession(session *identity.Session) {
	p.setSession(session)
}

func (p *Provider) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return p.transport.Do(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   authPath + "/recover",
		Query:  query,
		Header: p.headers(""),
		Body:   map[string]string{"email": email},
	}, nil)
}

func (p *Provider) UpdateUser(ctx context.Context, update identity.UserUpdate) (*identity.User, error) {
	if update.RecoveryToken != "" {
		if err := p.verifyRecovery(ctx, update.RecoveryToken); err != nil {
			return nil, err
		}
	}

	session := p.currentSession()
	if session == nil {
		return nil, identity.ErrNotAuthenticated
	}

	attrs := userAttributes{Email: update.Email, Password: update.Password}
	data := map[string]any{}
	if update.FirstName != nil {
		data["first_name"] = *update.FirstName
	}
	if update.LastName != nil {
		data["last_name"] = *update.LastName
	}
	if update.Username != nil {
		data["username"] = *update.Username
	}
	if len(data) > 0 {
		attrs.Data = data
	}

	var user gotrueUser
	if err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodPut,
		Path:   authPath + "/user",
		Header: p.headers(session.AccessToken),
		Body:   attrs,
	}, &user); err != nil {
		return nil, err
	}

	next := *session
	next.User = user.toIdentity()
	p.setSession(&next)
	p.listener.Emit(identity.EventUserUpdated, &next)
	return next.User, nil
}

func (p *Provider) OnAuthStateChange(cb identity.AuthStateCallback) func() {
	return p.listener.Set(cb)
}

// verifyRecovery exchanges an emailed recovery token for a session.
func (p *Provider) verifyRecovery(ctx context.Context, tokenHash string) error {
	var payload sessionPayload
	if err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   authPath + "/verify",
		Header: p.headers(""),
		Body:   map[string]string{"type": "recovery", "token_hash": tokenHash},
	}, &payload); err != nil {
		return err
	}

	session := payload.toSession(p.now())
	if session == nil {
		return identity.NewError(0, identity.CodeInvalidResponse, "Recovery did not return a session")
	}
	p.setSession(session)
	p.listener.Emit(identity.EventPasswordRecovery, session)
	return nil
}

func (p *Provider) grant(ctx context.Context, grantType string, body map[string]string) (*identity.Session, error) {
	var payload sessionPayload
	if err := p.transport.Do(ctx, identity.Request{
		Method: http.MethodPost,
		Path:   authPath + "/token",
		Query:  url.Values{"grant_type": {grantType}},
		Header: p.headers(""),
		Body:   body,
	}, &payload); err != nil {
		return nil, err
	}

	session := payload.toSession(p.now())
	if session == nil {
		return nil, identity.NewError(0, identity.CodeInvalidResponse, "Token response did not include a session")
	}
	return session, nil
}

func (p *Provider) headers(accessToken string) http.Header {
	token := accessToken
	if token == "" {
		token = p.anonKey
	}
	h := identity.BearerHeader(token)
	h.Set("apikey", p.anonKey)
	return h
}

func (p *Provider) drop() *identity.Session {
	if p.takeSession() != nil {
		p.listener.Emit(identity.EventSignedOut, nil)
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

func rejected(err error) bool {
	return identity.IsStatus(err, http.StatusUnauthorized) ||
		identity.IsStatus(err, http.StatusForbidden) ||
		identity.IsStatus(err, http.StatusBadRequest)
}
