package user

import (
	"context"
	"testing"
	"time"

	domainUser "prediction-platform/internal/domain/user"
	"prediction-platform/internal/events"
	appErrors "prediction-platform/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminActor() Actor {
	return Actor{ID: uuid.New(), Role: domainUser.RoleAdmin}
}

func TestBanUser_BlocksLoginAndRevokesTokens(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()

	require.NoError(t, h.svc.BanUser(ctx, adminActor(), u.ID, &BanRequest{Reason: "  cheating  "}))

	_, err := h.svc.Login(ctx, &LoginRequest{Email: "a@x.com", Password: "secret1"})
	appErr := requireCode(t, err, appErrors.CodeForbidden)
	assert.Equal(t, "Account is banned: cheating", appErr.Message)
	assert.Contains(t, h.tokens.revokeAll, u.ID)

	me, _ := h.svc.GetMe(ctx, u.ID)
	assert.True(t, me.IsBanned)
	require.NotNil(t, me.BanReason)

	h.events.mu.Lock()
	last := h.events.events[len(h.events.events)-1]
	h.events.mu.Unlock()
	assert.Equal(t, events.UserBanned, last.Type)
	assert.Equal(t, "cheating", last.Data["reason"])
}

func TestBanUser_WithoutReason(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()

	require.NoError(t, h.svc.BanUser(ctx, adminActor(), u.ID, &BanRequest{}))

	_, err := h.svc.Login(ctx, &LoginRequest{Email: "a@x.com", Password: "secret1"})
	appErr := requireCode(t, err, appErrors.CodeForbidden)
	assert.Equal(t, "Account is banned: No reason provided", appErr.Message)
}

func TestUnbanUser(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()
	admin := adminActor()

	require.NoError(t, h.svc.BanUser(ctx, admin, u.ID, &BanRequest{Reason: "spam"}))
	require.NoError(t, h.svc.UnbanUser(ctx, admin, u.ID))

	me, _ := h.svc.GetMe(ctx, u.ID)
	assert.False(t, me.IsBanned)
	assert.Nil(t, me.BanReason)
	_, err := h.svc.Login(ctx, &LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.NoError(t, err)
	assert.Contains(t, h.events.types(), events.UserUnbanned)
}

func TestModeration_Guards(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()

	err := h.svc.BanUser(ctx, Actor{ID: uuid.New(), Role: domainUser.RoleUser}, u.ID, &BanRequest{})
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)

	self := Actor{ID: u.ID, Role: domainUser.RoleAdmin}
	assert.ErrorIs(t, h.svc.DeactivateUser(ctx, self, u.ID), ErrSelfModeration)

	assert.ErrorIs(t, h.svc.ActivateUser(ctx, adminActor(), uuid.New()), appErrors.ErrUserNotFound)
}

func TestDeactivateAndActivate(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()
	admin := adminActor()

	require.NoError(t, h.svc.DeactivateUser(ctx, admin, u.ID))
	_, err := h.svc.Login(ctx, &LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrUserInactive)

	_, err = h.svc.GetProfile(ctx, u.ID)
	assert.ErrorIs(t, err, appErrors.ErrUserNotFound)

	require.NoError(t, h.svc.ActivateUser(ctx, admin, u.ID))
	_, err = h.svc.Login(ctx, &LoginRequest{Email: "a@x.com", Password: "secret1"})
	assert.NoError(t, err)
}

func TestDeleteIdentity(t *testing.T) {
	identity := &fakeIdentityAdmin{}
	h := newHarness(t, func(d *Deps) { d.IdentityAdmin = identity })
	u := h.signup(t, "a@x.com", "secret1")
	ctx := context.Background()

	require.NoError(t, h.svc.DeleteIdentity(ctx, adminActor(), u.ID))

	assert.Equal(t, []string{u.ID.String()}, identity.deleted)
	stored, err := h.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestDeleteIdentity_ProviderFailure(t *testing.T) {
	identity := &fakeIdentityAdmin{err: errBoom}
	h := newHarness(t, func(d *Deps) { d.IdentityAdmin = identity })
	u := h.signup(t, "a@x.com", "secret1")

	err := h.svc.DeleteIdentity(context.Background(), adminActor(), u.ID)

	requireCode(t, err, appErrors.CodeServer)
}

func TestDeleteIdentity_WithoutProviderOnlyDeactivates(t *testing.T) {
	h := newHarness(t)
	u := h.signup(t, "a@x.com", "secret1")

	require.NoError(t, h.svc.DeleteIdentity(context.Background(), adminActor(), u.ID))

	stored, _ := h.users.GetByID(context.Background(), u.ID)
	assert.False(t, stored.IsActive)
}

func TestListAllUsers(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com", "secret1")
	h.signup(t, "b@x.com", "secret1")

	users, err := h.svc.ListAllUsers(context.Background())

	require.NoError(t, err)
	assert.Len(t, users, 2)
}

type countingTokenRepo struct {
	*fakeTokenRepo
	calls chan time.Duration
}

func (r *countingTokenRepo) DeleteExpired(_ context.Context, olderThan time.Duration) error {
	r.calls <- olderThan
	return nil
}

func TestStartTokenCleanupJob_RunsImmediatelyAndStops(t *testing.T) {
	repo := &countingTokenRepo{fakeTokenRepo: newFakeTokenRepo(), calls: make(chan time.Duration, 4)}
	h := newHarness(t, func(d *Deps) { d.RefreshTokens = repo })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.StartTokenCleanupJob(ctx, time.Hour)
		close(done)
	}()

	select {
	case got := <-repo.calls:
		assert.Equal(t, tokenRetention, got)
	case <-time.After(time.Second):
		t.Fatal("cleanup did not run on start")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup job did not stop")
	}
}
