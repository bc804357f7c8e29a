package cli

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"prediction-platform/internal/config"
	"prediction-platform/internal/identity"
	"prediction-platform/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	listener identity.Listener

	mu       sync.Mutex
	session  *identity.Session
	accounts map[string]string
	updates  []identity.UserUpdate
	resets   []string
	signUp   *identity.SignUpResult
}

func newStubProvider() *stubProvider {
	return &stubProvider{accounts: map[string]string{"ann@x.com": "secret1"}}
}

func (p *stubProvider) SignUp(_ context.Context, email, _ string, profile identity.Profile) (*identity.SignUpResult, error) {
	if p.signUp != nil {
		return p.signUp, nil
	}
	return &identity.SignUpResult{User: &identity.User{ID: "u2", Email: email, FirstName: profile.FirstName}}, nil
}

func (p *stubProvider) SignIn(_ context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	if p.accounts[email] != password {
		p.mu.Unlock()
		return nil, identity.NewError(http.StatusUnauthorized, identity.CodeInvalidCredential, "Invalid email or password")
	}
	s := &identity.Session{
		AccessToken: "access",
		User:        &identity.User{ID: "u1", Email: email, FirstName: "Ann", LastName: "Lee", Points: 100, Status: 1},
	}
	p.session = s
	p.mu.Unlock()
	p.listener.Emit(identity.EventSignedIn, s)
	return s, nil
}

func (p *stubProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.listener.Emit(identity.EventSignedOut, nil)
	return nil
}

func (p *stubProvider) GetSession(context.Context) (*identity.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

func (p *stubProvider) SetSession(s *identity.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
}

func (p *stubProvider) ResetPasswordForEmail(_ context.Context, email, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, email)
	return nil
}

func (p *stubProvider) UpdateUser(_ context.Context, update identity.UserUpdate) (*identity.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, update)
	return nil, nil
}

func (p *stubProvider) OnAuthStateChange(cb identity.AuthStateCallback) func() {
	return p.listener.Set(cb)
}

func withoutTerminal(t *testing.T) {
	t.Helper()
	prev := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = prev })
}

func run(t *testing.T, provider *stubProvider, store session.Store, input string, args ...string) (int, string) {
	t.Helper()
	manager := session.NewManager(provider, store, session.Options{})
	var out bytes.Buffer
	app := NewAppWithManager(manager, strings.NewReader(input), &out)
	defer app.Close()
	code := app.Run(context.Background(), args)
	return code, out.String()
}

func TestRun_Usage(t *testing.T) {
	code, out := run(t, newStubProvider(), nil, "")
	assert.Equal(t, 2, code)
	for _, name := range commandOrder {
		assert.Contains(t, out, name)
	}

	code, out = run(t, newStubProvider(), nil, "", "dance")
	assert.Equal(t, 2, code)
	assert.Contains(t, out, `Unknown command "dance"`)
}

func TestLogin_ThenWhoamiFromStore(t *testing.T) {
	withoutTerminal(t)
	provider := newStubProvider()
	store := session.NewMemoryStore()

	code, out := run(t, provider, store, "ann@x.com\nsecret1\n", "login")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Signed in as Ann Lee (100 points)")

	code, out = run(t, provider, store, "", "whoami")
	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Ann Lee <ann@x.com>")
	assert.Contains(t, out, "verified")
}

func TestLogin_BadPassword(t *testing.T) {
	withoutTerminal(t)

	code, out := run(t, newStubProvider(), nil, "ann@x.com\nwrong\n", "login")

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error: Invalid email or password. Please check your credentials and try again.")
}

func TestLogin_ReadsPasswordWithoutEcho(t *testing.T) {
	prevTerm, prevRead := isTerminal, readPassword
	isTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) { return []byte("secret1"), nil }
	t.Cleanup(func() { isTerminal, readPassword = prevTerm, prevRead })

	code, out := run(t, newStubProvider(), nil, "ann@x.com\n", "login")

	require.Equal(t, 0, code, out)
	assert.NotContains(t, out, "secret1")
}

func TestWhoami_SignedOut(t *testing.T) {
	code, out := run(t, newStubProvider(), nil, "", "whoami")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Not signed in")
}

func TestSignup_PendingVerification(t *testing.T) {
	withoutTerminal(t)

	code, out := run(t, newStubProvider(), nil, "new@x.com\nNew\nUser\n\nsecret1\nsecret1\n", "signup")

	require.Equal(t, 0, code, out)
	assert.Contains(t, out, "Account created for new@x.com")
}

func TestSignup_PasswordMismatch(t *testing.T) {
	withoutTerminal(t)

	code, out := run(t, newStubProvider(), nil, "new@x.com\nNew\nUser\n\nsecret1\nsecret2\n", "signup")

	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Error: Passwords do not match")
}

func TestForgotPassword(t *testing.T) {
	provider := newStubProvider()

	code, out := run(t, provider, nil, " ann@x.com \n", "forgot-password")

	require.Equal(t, 0, code)
	assert.Contains(t, out, session.ResetPasswordMessage)
	assert.Equal(t, []string{"ann@x.com"}, provider.resets)
}

func TestResetPassword(t *testing.T) {
	withoutTerminal(t)
	provider := newStubProvider()

	code, out := run(t, provider, nil, "tok\nsecret9\nsecret9\n", "reset-password")

	require.Equal(t, 0, code, out)
	require.Len(t, provider.updates, 1)
	assert.Equal(t, "tok", provider.updates[0].RecoveryToken)
	assert.Equal(t, "secret9", *provider.updates[0].Password)
}

func TestChangePassword_RequiresSignIn(t *testing.T) {
	code, out := run(t, newStubProvider(), nil, "", "change-password")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Please sign in to continue.")
}

func TestChangePassword(t *testing.T) {
	withoutTerminal(t)
	provider := newStubProvider()
	store := session.NewMemoryStore()
	code, _ := run(t, provider, store, "ann@x.com\nsecret1\n", "login")
	require.Equal(t, 0, code)

	code, out := run(t, provider, store, "secret1\nsecret2\nsecret2\n", "change-password")

	require.Equal(t, 0, code, out)
	require.Len(t, provider.updates, 1)
	assert.Equal(t, "secret1", provider.updates[0].CurrentPassword)
	assert.Equal(t, "secret2", *provider.updates[0].Password)
}

func TestLogout(t *testing.T) {
	withoutTerminal(t)
	provider := newStubProvider()
	store := session.NewMemoryStore()
	code, _ := run(t, provider, store, "ann@x.com\nsecret1\n", "login")
	require.Equal(t, 0, code)

	code, out := run(t, provider, store, "", "logout")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Signed out")

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestPrompt_EOFWithoutNewline(t *testing.T) {
	app := NewAppWithManager(nil, strings.NewReader("last"), &bytes.Buffer{})

	got, err := app.prompt("Email")
	require.NoError(t, err)
	assert.Equal(t, "last", got)

	_, err = app.prompt("Email")
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	_, err := newProvider(&config.ClientConfig{Provider: "supabase"})
	assert.Error(t, err)

	_, err = newProvider(&config.ClientConfig{Provider: "ldap"})
	assert.Error(t, err)

	p, err := newProvider(&config.ClientConfig{APIURL: "http://localhost"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestLowerFirst(t *testing.T) {
	assert.Equal(t, "new password", lowerFirst("New password"))
	assert.Equal(t, "", lowerFirst(""))
}
