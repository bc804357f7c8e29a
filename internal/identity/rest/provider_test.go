package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"prediction-platform/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

// fakeAPI serves canned envelopes per "METHOD /path" and records every call.
type fakeAPI struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []call
	routes map[string]func(w http.ResponseWriter, body map[string]any)
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Provider) {
	t.Helper()
	api := &fakeAPI{t: t, routes: map[string]func(http.ResponseWriter, map[string]any){}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return api, New(srv.URL, time.Second)
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	key := r.Method + " " + r.URL.Path

	a.mu.Lock()
	a.calls = append(a.calls, call{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
	handler, ok := a.routes[key]
	a.mu.Unlock()

	if !ok {
		a.t.Errorf("unexpected request %s", key)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	handler(w, body)
}

func (a *fakeAPI) on(key string, h func(w http.ResponseWriter, body map[string]any)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.routes[key] = h
}

func (a *fakeAPI) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.method+" "+c.path == key {
			n++
		}
	}
	return n
}

func (a *fakeAPI) last() call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

func reply(status int, message string, data any) func(http.ResponseWriter, map[string]any) {
	return func(w http.ResponseWriter, _ map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		env := map[string]any{"status": status < 300, "message": message}
		if data != nil {
			env["data"] = data
		}
		_ = json.NewEncoder(w).Encode(env)
	}
}

func userJSON(id string) map[string]any {
	return map[string]any{
		"id":         id,
		"email":      id + "@x.com",
		"username":   id,
		"first_name": "First",
		"last_name":  "Last",
		"points":     100,
		"status":     0,
		"role":       "user",
		"created_at": "2026-01-02T03:04:05Z",
	}
}

func authJSON(id string, expiresAt int64) map[string]any {
	return map[string]any{
		"user":          userJSON(id),
		"access_token":  "access-" + id,
		"refresh_token": "refresh-" + id,
		"expires_at":    expiresAt,
	}
}

type recorder struct {
	mu     sync.Mutex
	events []identity.AuthEvent
}

func (r *recorder) callback(e identity.AuthEvent, _ *identity.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) got() []identity.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]identity.AuthEvent(nil), r.events...)
}

func TestSignIn(t *testing.T) {
	api, p := newFakeAPI(t)
	exp := time.Now().Add(time.Hour).Unix()
	api.on("POST /api/users/login", reply(http.StatusOK, "Login successful", authJSON("u1", exp)))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)

	session, err := p.SignIn(context.Background(), "u1@x.com", "secret1")

	require.NoError(t, err)
	assert.Equal(t, "access-u1", session.AccessToken)
	assert.Equal(t, exp, session.ExpiresAt.Unix())
	require.NotNil(t, session.User)
	assert.Equal(t, "u1", session.User.Username)
	assert.Equal(t, 100, session.User.Points)
	require.NotNil(t, session.User.CreatedAt)
	assert.Equal(t, []identity.AuthEvent{identity.EventSignedIn}, rec.got())
	assert.Equal(t, map[string]any{"email": "u1@x.com", "password": "secret1"}, api.last().body)
}

func TestSignIn_WrongPassword(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/login", reply(http.StatusUnauthorized, "Invalid email or password", nil))

	_, err := p.SignIn(context.Background(), "u1@x.com", "nope")

	var e *identity.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusUnauthorized, e.Status)
	assert.Equal(t, identity.CodeInvalidCredential, e.Code)
	assert.Equal(t, "Invalid email or password", e.Message)
	assert.Equal(t, 1, api.count("POST /api/users/login"))
}

func TestSignUp_ValidationErrorsAreJoined(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/signup", func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":false,"message":"Validation failed","errors":[
			{"field":"email","message":"Invalid email format"},
			{"field":"password","message":"password is required"}]}`)
	})

	_, err := p.SignUp(context.Background(), "bad", "", identity.Profile{})

	var e *identity.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, identity.CodeValidation, e.Code)
	assert.Equal(t, "Validation failed: Invalid email format; password is required", e.Message)
}

func TestSignUp_ReturnsUserWithoutSession(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/signup", reply(http.StatusCreated, "User registered successfully", userJSON("u1")))

	result, err := p.SignUp(context.Background(), "u1@x.com", "secret1", identity.Profile{FirstName: "A", LastName: "B"})

	require.NoError(t, err)
	assert.Equal(t, "u1", result.User.ID)
	assert.Nil(t, result.Session)
	body := api.last().body
	assert.Equal(t, "A", body["first_name"])
	assert.NotContains(t, body, "username")
}

func TestCall_EnvelopeWithFalseStatus(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/forgot-password", func(w http.ResponseWriter, _ map[string]any) {
		_, _ = io.WriteString(w, `{"status":false,"message":"Something odd"}`)
	})

	err := p.ResetPasswordForEmail(context.Background(), "a@x.com", "")

	var e *identity.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "request_failed", e.Code)
	assert.Equal(t, "Something odd", e.Message)
}

func TestGetSession_NoSessionMakesNoRequest(t *testing.T) {
	api, p := newFakeAPI(t)

	session, err := p.GetSession(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Empty(t, api.calls)
}

func TestGetSession_RefreshesNearExpiry(t *testing.T) {
	api, p := newFakeAPI(t)
	later := time.Now().Add(time.Hour).Unix()
	api.on("POST /api/users/refresh", reply(http.StatusOK, "Token refreshed", map[string]any{
		"access_token": "access-2", "refresh_token": "refresh-2", "expires_at": later,
	}))
	api.on("GET /api/users/me", reply(http.StatusOK, "ok", userJSON("u1")))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)
	p.SetSession(&identity.Session{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresAt: time.Now().Add(10 * time.Second)})

	session, err := p.GetSession(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "access-2", session.AccessToken)
	assert.Equal(t, "u1", session.User.ID)
	assert.Equal(t, "Bearer access-2", api.last().auth)
	assert.Equal(t, []identity.AuthEvent{identity.EventTokenRefreshed}, rec.got())
}

func TestGetSession_RejectedTokenSignsOut(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("GET /api/users/me", reply(http.StatusUnauthorized, "Invalid or expired token", nil))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)
	p.SetSession(&identity.Session{AccessToken: "stale", ExpiresAt: time.Now().Add(time.Hour)})

	session, err := p.GetSession(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, []identity.AuthEvent{identity.EventSignedOut}, rec.got())

	session, err = p.GetSession(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, 1, api.count("GET /api/users/me"))
}

func TestGetSession_ServerErrorKeepsSession(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("GET /api/users/me", reply(http.StatusInternalServerError, "Failed to load user", nil))
	p.SetSession(&identity.Session{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)})

	_, err := p.GetSession(context.Background())

	var e *identity.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.Transient())
	assert.Equal(t, 2, api.count("GET /api/users/me"), "GET is retried once")
	assert.NotNil(t, p.currentSession())
}

func TestGetSession_ZeroExpiryIsNotRefreshed(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("GET /api/users/me", reply(http.StatusOK, "ok", userJSON("u1")))
	p.SetSession(&identity.Session{AccessToken: "a", RefreshToken: "r"})

	_, err := p.GetSession(context.Background())

	require.NoError(t, err)
	assert.Zero(t, api.count("POST /api/users/refresh"))
}

func TestSignOut(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/logout", reply(http.StatusOK, "Logged out successfully", nil))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)
	p.SetSession(&identity.Session{AccessToken: "a", RefreshToken: "r"})

	require.NoError(t, p.SignOut(context.Background()))

	c := api.last()
	assert.Equal(t, "Bearer a", c.auth)
	assert.Equal(t, "r", c.body["refresh_token"])
	assert.Equal(t, []identity.AuthEvent{identity.EventSignedOut}, rec.got())

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, 1, api.count("POST /api/users/logout"))
}

func TestSignOut_ServerFailureStillClearsSession(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/logout", reply(http.StatusInternalServerError, "Logout failed", nil))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)
	p.SetSession(&identity.Session{AccessToken: "a"})

	err := p.SignOut(context.Background())

	assert.Error(t, err)
	assert.Nil(t, p.currentSession())
	assert.Equal(t, []identity.AuthEvent{identity.EventSignedOut}, rec.got())
}

func TestUpdateUser_RecoveryToken(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/reset-password", reply(http.StatusOK, "Password reset successfully", nil))
	pw := "newpass2"

	_, err := p.UpdateUser(context.Background(), identity.UserUpdate{Password: &pw, RecoveryToken: "tok"})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"token": "tok", "password": "newpass2"}, api.last().body)
}

func TestUpdateUser_ChangePassword(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/change-password", reply(http.StatusOK, "Password changed successfully", nil))
	pw := "newpass2"

	_, err := p.UpdateUser(context.Background(), identity.UserUpdate{Password: &pw})
	assert.ErrorIs(t, err, identity.ErrNotAuthenticated)

	p.SetSession(&identity.Session{AccessToken: "a"})
	_, err = p.UpdateUser(context.Background(), identity.UserUpdate{Password: &pw})
	var e *identity.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, identity.CodeValidation, e.Code)
	assert.Empty(t, api.calls)

	_, err = p.UpdateUser(context.Background(), identity.UserUpdate{Password: &pw, CurrentPassword: "secret1"})
	require.NoError(t, err)
	c := api.last()
	assert.Equal(t, "Bearer a", c.auth)
	assert.Equal(t, "secret1", c.body["current_password"])
	assert.Equal(t, "newpass2", c.body["new_password"])
}

func TestUpdateUser_Profile(t *testing.T) {
	api, p := newFakeAPI(t)
	updated := userJSON("u1")
	updated["first_name"] = "Ann"
	api.on("PUT /api/users/profile", reply(http.StatusOK, "Profile updated successfully", updated))
	rec := &recorder{}
	p.OnAuthStateChange(rec.callback)
	p.SetSession(&identity.Session{AccessToken: "a"})
	name := "Ann"

	user, err := p.UpdateUser(context.Background(), identity.UserUpdate{FirstName: &name})

	require.NoError(t, err)
	assert.Equal(t, "Ann", user.FirstName)
	assert.Equal(t, map[string]any{"first_name": "Ann"}, api.last().body)
	assert.Equal(t, "Ann", p.currentSession().User.FirstName)
	assert.Equal(t, []identity.AuthEvent{identity.EventUserUpdated}, rec.got())
}

func TestResetPasswordForEmail_NotFoundSurfacesStatus(t *testing.T) {
	api, p := newFakeAPI(t)
	api.on("POST /api/users/forgot-password", reply(http.StatusNotFound, "User not found", nil))

	err := p.ResetPasswordForEmail(context.Background(), "ghost@x.com", "app://reset")

	assert.True(t, identity.IsStatus(err, http.StatusNotFound))
	assert.Equal(t, map[string]any{"email": "ghost@x.com"}, api.last().body)
}

func TestUnixTime(t *testing.T) {
	assert.True(t, unixTime(0).IsZero())
	assert.True(t, unixTime(-5).IsZero())
	assert.Equal(t, int64(1700000000), unixTime(1700000000).Unix())
}
