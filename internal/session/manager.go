// Package session owns "who is logged in" for one running client.
//
// Manager keeps the current user in memory, mirrors it to a Store so it
// survives restarts, and announces changes on a Bus. Every change to the
// current user goes through SetCurrentUser.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"prediction-platform/internal/identity"
	"prediction-platform/internal/logger"

	"go.uber.org/zap"
)

// ResetPasswordMessage is returned for every reset request so callers cannot
// tell whether the email is registered.
const ResetPasswordMessage = "If the email exists, a reset link has been sent"

const listenerTimeout = 5 * time.Second

var (
	ErrLoginInProgress = errors.New("a login is already in progress")
	ErrNoUserData      = errors.New("login failed: no user data received")
)

type Options struct {
	// ResetRedirect is where the reset email should send the user.
	ResetRedirect string
}

type Manager struct {
	provider      identity.Provider
	store         Store
	bus           *Bus
	resetRedirect string
	log           *zap.Logger

	mu      sync.RWMutex
	user    *identity.User
	session *identity.Session

	loggingIn   atomic.Bool
	loggingOut  atomic.Bool
	unsubscribe func()
	closeOnce   sync.Once
}

func NewManager(provider identity.Provider, store Store, opts Options) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		provider:      provider,
		store:         store,
		bus:           NewBus(),
		resetRedirect: opts.ResetRedirect,
		log:           logger.Named("session"),
	}
	m.unsubscribe = provider.OnAuthStateChange(m.handleAuthState)
	return m
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

func (m *Manager) CurrentUser() *identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user
}

// Subscribe delivers login and logout events until the returned function is
// called or the manager is closed.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// SetCurrentUser replaces the current user. A non-nil user is persisted and
// announced with EventLogin; nil clears the store and announces EventLogout.
// The in-memory state and the event do not depend on the store succeeding.
func (m *Manager) SetCurrentUser(ctx context.Context, user *identity.User) error {
	m.mu.Lock()
	m.user = user
	if user == nil {
		m.session = nil
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	var err error
	if user != nil {
		err = m.store.Save(ctx, snapshot)
		m.bus.Publish(Event{Type: EventLogin, User: user})
	} else {
		err = m.store.Clear(ctx)
		m.bus.Publish(Event{Type: EventLogout})
	}

	if err != nil {
		m.log.Error("Failed to persist session", zap.Error(err))
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// CheckLocalStorage restores the user saved by a previous run. It reports
// whether a user was restored and announces EventLogin the first time a given
// user is restored.
func (m *Manager) CheckLocalStorage(ctx context.Context) (bool, error) {
	snapshot, err := m.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if !snapshot.restorable() {
		return false, nil
	}

	m.mu.Lock()
	already := m.user != nil && m.user.ID == snapshot.CurrentUser.ID
	m.user = snapshot.CurrentUser
	m.session = snapshot.Session
	m.mu.Unlock()

	if snapshot.Session != nil {
		m.provider.SetSession(snapshot.Session)
	}
	if !already {
		m.bus.Publish(Event{Type: EventLogin, User: snapshot.CurrentUser})
	}
	return true, nil
}

// RestoreSession rehydrates from the store and then confirms the session
// with the provider. A session the provider rejects is cleared. When the
// provider cannot be reached the stored user is kept.
func (m *Manager) RestoreSession(ctx context.Context) (*identity.User, error) {
	restored, err := m.CheckLocalStorage(ctx)
	if err != nil {
		m.log.Warn("Failed to read stored session", zap.Error(err))
	}

	session, err := m.provider.GetSession(ctx)
	if err != nil {
		if restored && identity.AsError(err).Transient() {
			m.log.Warn("Could not confirm stored session, keeping it", zap.Error(err))
			return m.CurrentUser(), nil
		}
		return nil, err
	}

	if session == nil || session.User == nil {
		if m.IsAuthenticated() {
			_ = m.SetCurrentUser(ctx, nil)
		} else if err := m.store.Clear(ctx); err != nil {
			m.log.Warn("Failed to clear stored session", zap.Error(err))
		}
		return nil, nil
	}

	if current := m.CurrentUser(); current != nil && current.ID == session.User.ID {
		m.persistSession(ctx, session)
		return session.User, nil
	}
	if err := m.adopt(ctx, session); err != nil {
		m.log.Warn("Restored session not persisted", zap.Error(err))
	}
	return session.User, nil
}

// Login signs in through the provider. Overlapping calls on the same manager
// fail with ErrLoginInProgress.
func (m *Manager) Login(ctx context.Context, email, password string) (*identity.User, error) {
	if !m.loggingIn.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	defer m.loggingIn.Store(false)

	session, err := m.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	if session == nil || session.User == nil {
		return nil, ErrNoUserData
	}

	if err := m.adopt(ctx, session); err != nil {
		m.log.Warn("Logged in but session not persisted", zap.Error(err))
	}
	m.log.Info("User logged in", zap.String("user_id", session.User.ID))
	return session.User, nil
}

// Signup registers a new account. The user is only signed in when the
// provider returns a session, which it does not while email verification is
// pending.
func (m *Manager) Signup(ctx context.Context, email, password string, profile identity.Profile) (*identity.User, error) {
	if !m.loggingIn.CompareAndSwap(false, true) {
		return nil, ErrLoginInProgress
	}
	defer m.loggingIn.Store(false)

	result, err := m.provider.SignUp(ctx, strings.TrimSpace(email), password, profile)
	if err != nil {
		return nil, err
	}
	if result == nil || result.User == nil {
		return nil, errors.New("registration failed: no user data received")
	}

	if result.Session != nil {
		if result.Session.User == nil {
			result.Session.User = result.User
		}
		if err := m.adopt(ctx, result.Session); err != nil {
			m.log.Warn("Signed up but session not persisted", zap.Error(err))
		}
	}
	return result.User, nil
}

// Logout always clears local state. A provider failure is logged, not
// returned.
func (m *Manager) Logout(ctx context.Context) error {
	m.loggingOut.Store(true)
	defer m.loggingOut.Store(false)

	if err := m.provider.SignOut(ctx); err != nil {
		m.log.Warn("Provider sign out failed, clearing local session anyway", zap.Error(err))
	}
	if err := m.SetCurrentUser(ctx, nil); err != nil {
		m.log.Warn("Local session cleared in memory only", zap.Error(err))
	}
	return nil
}

// ResetPassword requests a reset email and returns ResetPasswordMessage.
// An unknown account is reported as success; transport and validation
// failures are returned.
func (m *Manager) ResetPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", identity.NewError(http.StatusBadRequest, identity.CodeValidation, "Email is required")
	}

	err := m.provider.ResetPasswordForEmail(ctx, email, m.resetRedirect)
	if err != nil && !identity.IsStatus(err, http.StatusNotFound) {
		return "", err
	}
	return ResetPasswordMessage, nil
}

// UpdatePassword changes the signed-in user's password. Providers that
// re-authenticate the change use currentPassword.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword, currentPassword string) error {
	if !m.IsAuthenticated() {
		return identity.ErrNotAuthenticated
	}
	_, err := m.provider.UpdateUser(ctx, identity.UserUpdate{
		Password:        &newPassword,
		CurrentPassword: currentPassword,
	})
	return err
}

// CompletePasswordReset sets a new password using the token from a reset
// email.
func (m *Manager) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.NewError(http.StatusBadRequest, identity.CodeValidation, "Reset token is required")
	}
	_, err := m.provider.UpdateUser(ctx, identity.UserUpdate{
		Password:      &newPassword,
		RecoveryToken: token,
	})
	return err
}

// Close stops listening to the provider and closes subscriber channels.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.bus.Close()
	})
}

// handleAuthState reacts to changes the provider reports on its own, such as
// a token refresh or a server-side sign out. Changes caused by Login, Signup
// and Logout are handled by those methods.
func (m *Manager) handleAuthState(event identity.AuthEvent, session *identity.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
	defer cancel()

	m.log.Debug("Auth state changed", zap.String("event", string(event)))

	switch event {
	case identity.EventSignedIn, identity.EventPasswordRecovery, identity.EventUserUpdated:
		if m.loggingIn.Load() || session == nil || session.User == nil {
			return
		}
		if current := m.CurrentUser(); current != nil && current.ID == session.User.ID && event != identity.EventUserUpdated {
			m.persistSession(ctx, session)
			return
		}
		_ = m.adopt(ctx, session)
	case identity.EventSignedOut:
		if m.loggingOut.Load() || !m.IsAuthenticated() {
			return
		}
		_ = m.SetCurrentUser(ctx, nil)
	case identity.EventTokenRefreshed:
		if session != nil && m.IsAuthenticated() {
			m.persistSession(ctx, session)
		}
	}
}

func (m *Manager) adopt(ctx context.Context, session *identity.Session) error {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
	return m.SetCurrentUser(ctx, session.User)
}

// persistSession stores fresh tokens for the current user without announcing
// anything.
func (m *Manager) persistSession(ctx context.Context, session *identity.Session) {
	m.mu.Lock()
	m.session = session
	if session.User != nil {
		m.user = session.User
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		m.log.Warn("Failed to persist refreshed session", zap.Error(err))
	}
}

func (m *Manager) snapshotLocked() *Snapshot {
	snapshot := &Snapshot{
		CurrentUser:     m.user,
		IsAuthenticated: m.user != nil,
	}
	if m.session != nil {
		s := *m.session
		s.User = nil
		snapshot.Session = &s
	}
	return snapshot
}
