package user

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"prediction-platform/internal/config"
	domainUser "prediction-platform/internal/domain/user"
	"prediction-platform/internal/events"

	"github.com/google/uuid"
)

// ---- user repository ----

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domainUser.User

	createErr error
	updateErr error
	creates   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*domainUser.User)}
}

func clone(u *domainUser.User) *domainUser.User {
	cp := *u
	return &cp
}

func (r *fakeUserRepo) Create(_ context.Context, u *domainUser.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return domainUser.ErrEmailTaken
		}
		if u.Username != nil && existing.Username != nil && strings.EqualFold(*existing.Username, *u.Username) {
			return domainUser.ErrUsernameTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	r.users[u.ID] = clone(u)
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domainUser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domainUser.ErrUserNotFound
	}
	return clone(u), nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domainUser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return clone(u), nil
		}
	}
	return nil, domainUser.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domainUser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username != nil && strings.EqualFold(*u.Username, username) {
			return clone(u), nil
		}
	}
	return nil, domainUser.ErrUserNotFound
}

func (r *fakeUserRepo) GetByToken(_ context.Context, token string, purpose domainUser.TokenPurpose) (*domainUser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ResetToken != nil && *u.ResetToken == token && u.ResetTokenPurpose != nil && *u.ResetTokenPurpose == purpose {
			return clone(u), nil
		}
	}
	return nil, domainUser.ErrUserNotFound
}

func (r *fakeUserRepo) GetAll(context.Context) ([]*domainUser.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domainUser.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, clone(u))
	}
	return out, nil
}

func (r *fakeUserRepo) EmailExists(_ context.Context, email string, excludeID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if excludeID != nil && u.ID == *excludeID {
			continue
		}
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) UsernameExists(_ context.Context, username string, excludeID *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if excludeID != nil && u.ID == *excludeID {
			continue
		}
		if u.Username != nil && strings.EqualFold(*u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeUserRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	u, ok := r.users[id]
	if !ok {
		return domainUser.ErrUserNotFound
	}
	applyFields(u, fields)
	return nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domainUser.ErrUserNotFound
	}
	u.PasswordHashed = hash
	return nil
}

func (r *fakeUserRepo) SetToken(_ context.Context, id uuid.UUID, token string, purpose domainUser.TokenPurpose, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domainUser.ErrUserNotFound
	}
	u.ResetToken = &token
	u.ResetTokenPurpose = &purpose
	u.ResetTokenExpires = &expiresAt
	return nil
}

func (r *fakeUserRepo) ConsumeToken(_ context.Context, id uuid.UUID, token string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.ResetToken == nil || *u.ResetToken != token {
		return domainUser.ErrTokenInvalid
	}
	applyFields(u, fields)
	u.ResetToken = nil
	u.ResetTokenPurpose = nil
	u.ResetTokenExpires = nil
	return nil
}

func (r *fakeUserRepo) profile(u *domainUser.User) *domainUser.Profile {
	return &domainUser.Profile{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		FullName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		Points:    u.Points,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

func (r *fakeUserRepo) GetProfile(_ context.Context, id uuid.UUID) (*domainUser.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.IsActive {
		return nil, domainUser.ErrUserNotFound
	}
	return r.profile(u), nil
}

func (r *fakeUserRepo) GetPublicProfile(_ context.Context, username string) (*domainUser.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.IsActive && u.Username != nil && strings.EqualFold(*u.Username, username) {
			return r.profile(u), nil
		}
	}
	return nil, domainUser.ErrUserNotFound
}

func (r *fakeUserRepo) active() []*domainUser.User {
	out := make([]*domainUser.User, 0, len(r.users))
	for _, u := range r.users {
		if u.IsActive && !u.IsBanned {
			out = append(out, u)
		}
	}
	return out
}

func (r *fakeUserRepo) ListProfiles(_ context.Context, offset, limit int) ([]*domainUser.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.active()
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	var out []*domainUser.Profile
	for i := offset; i < len(users) && len(out) < limit; i++ {
		out = append(out, r.profile(users[i]))
	}
	return out, nil
}

func (r *fakeUserRepo) CountActive(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.active())), nil
}

func (r *fakeUserRepo) SearchProfiles(_ context.Context, query string, limit int) ([]*domainUser.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(query)
	var out []*domainUser.Profile
	for _, u := range r.active() {
		name := strings.ToLower(u.FirstName + " " + u.LastName)
		if u.Username != nil {
			name += " " + strings.ToLower(*u.Username)
		}
		if strings.Contains(name, q) && len(out) < limit {
			out = append(out, r.profile(u))
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Leaderboard(_ context.Context, limit int) ([]*domainUser.LeaderboardEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := r.active()
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	var out []*domainUser.LeaderboardEntry
	for i, u := range users {
		if i >= limit {
			break
		}
		out = append(out, &domainUser.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    u.ID,
			Username:  u.Username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			AvatarURL: u.AvatarURL,
			Points:    u.Points,
		})
	}
	return out, nil
}

func applyFields(u *domainUser.User, fields map[string]interface{}) {
	for k, v := range fields {
		switch k {
		case "first_name":
			u.FirstName = v.(string)
		case "last_name":
			u.LastName = v.(string)
		case "bio":
			u.Bio = v.(string)
		case "avatar_url":
			s := v.(string)
			u.AvatarURL = &s
		case "phone":
			s := v.(string)
			u.Phone = &s
		case "username":
			s := v.(string)
			u.Username = &s
		case "email":
			u.Email = v.(string)
		case "status":
			u.Status = v.(int)
		case "password":
			u.PasswordHashed = v.(string)
		case "is_active":
			u.IsActive = v.(bool)
		case "is_banned":
			u.IsBanned = v.(bool)
		case "ban_reason":
			u.BanReason, _ = v.(*string)
		case "reset_token":
			s := v.(string)
			u.ResetToken = &s
		case "reset_token_purpose":
			p := domainUser.TokenPurpose(v.(string))
			u.ResetTokenPurpose = &p
		case "reset_token_expires":
			t := v.(time.Time)
			u.ResetTokenExpires = &t
		}
	}
	u.UpdatedAt = time.Now()
}

// ---- refresh tokens ----

type fakeTokenRepo struct {
	mu        sync.Mutex
	tokens    map[string]*domainUser.RefreshToken
	revokeAll []uuid.UUID
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: make(map[string]*domainUser.RefreshToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, t *domainUser.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.New()
	cp := *t
	r.tokens[t.Token] = &cp
	return nil
}

func (r *fakeTokenRepo) GetByToken(_ context.Context, token string) (*domainUser.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok || !t.IsActive() {
		return nil, domainUser.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTokenRepo) Revoke(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id && !t.Revoked {
			t.Revoked = true
			return nil
		}
	}
	return domainUser.ErrTokenNotFound
}

func (r *fakeTokenRepo) RevokeAllUserTokens(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeAll = append(r.revokeAll, userID)
	for _, t := range r.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (r *fakeTokenRepo) DeleteExpired(context.Context, time.Duration) error {
	return nil
}

// ---- achievements ----

type fakeAchievementRepo struct {
	mu      sync.Mutex
	awarded map[uuid.UUID][]string
}

func newFakeAchievementRepo() *fakeAchievementRepo {
	return &fakeAchievementRepo{awarded: make(map[uuid.UUID][]string)}
}

func (r *fakeAchievementRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domainUser.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domainUser.Achievement
	for _, code := range r.awarded[userID] {
		out = append(out, &domainUser.Achievement{ID: uuid.New(), Code: code, Name: code})
	}
	return out, nil
}

func (r *fakeAchievementRepo) Award(_ context.Context, userID uuid.UUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.awarded[userID] {
		if c == code {
			return nil
		}
	}
	r.awarded[userID] = append(r.awarded[userID], code)
	return nil
}

// ---- mailer, events, storage ----

type sentMail struct {
	kind string
	to   string
	link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *fakeMailer) SendVerification(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "verify", to: to, link: link})
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "reset", to: to, link: link})
	return nil
}

func (m *fakeMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) Close() {}

func (p *fakePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fakeIdentityAdmin struct {
	deleted []string
	err     error
}

func (a *fakeIdentityAdmin) DeleteUser(_ context.Context, id string) error {
	if a.err != nil {
		return a.err
	}
	a.deleted = append(a.deleted, id)
	return nil
}

var errBoom = errors.New("boom")

// ---- harness ----

type harness struct {
	svc          *Service
	users        *fakeUserRepo
	tokens       *fakeTokenRepo
	achievements *fakeAchievementRepo
	mailer       *fakeMailer
	events       *fakePublisher
	cfg          *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:             "test-secret",
			ExpiryHours:        1,
			RefreshExpiryHours: 24,
		},
		Auth: config.AuthConfig{
			RegistrationStatus:   "pending",
			ResetTokenTTL:        time.Hour,
			VerificationTokenTTL: 24 * time.Hour,
			AdminEmails:          []string{"boss@x.com"},
		},
		App: config.AppConfig{FrontendURL: "http://app.test"},
	}
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		users:        newFakeUserRepo(),
		tokens:       newFakeTokenRepo(),
		achievements: newFakeAchievementRepo(),
		mailer:       &fakeMailer{},
		events:       &fakePublisher{},
		cfg:          testConfig(),
	}
	deps := Deps{
		Users:         h.users,
		Achievements:  h.achievements,
		RefreshTokens: h.tokens,
		Mailer:        h.mailer,
		Events:        h.events,
		Config:        h.cfg,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = NewService(deps)
	return h
}

func (h *harness) signup(t *testing.T, email, password string) *UserResponse {
	t.Helper()
	resp, err := h.svc.Signup(context.Background(), &SignupRequest{
		Email:     email,
		Password:  password,
		FirstName: "A",
		LastName:  "B",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return resp
}

// tokenFromLink extracts the token query value from a mailed link.
func tokenFromLink(link string) string {
	i := strings.Index(link, "token=")
	if i < 0 {
		return ""
	}
	return link[i+len("token="):]
}
