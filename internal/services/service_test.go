package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/config"
	"github.com/adventuresafari/identity/internal/dbx"
	"github.com/adventuresafari/identity/internal/logging"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/notifier"
	usersrepo "github.com/adventuresafari/identity/internal/repositories/users"
)

// --- fakes ---

// fakeUsersRepo is an in-memory users.Repository with the same conditional
// semantics as the Postgres implementation, so resolver and guard logic can
// be exercised without a database.
type fakeUsersRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	// createErrOnce, when set, is returned by the next Create call and then
	// cleared. Used to simulate losing a uniqueness race.
	createErrOnce error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: make(map[string]*models.User)}
}

func (f *fakeUsersRepo) add(u *models.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

func (f *fakeUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErrOnce != nil {
		err := f.createErrOnce
		f.createErrOnce = nil
		return nil, err
	}

	for _, u := range f.users {
		if u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return nil, common.ErrorAlreadyExists
		}
		if user.AppleID != "" && u.AppleID == user.AppleID {
			return nil, common.ErrorAlreadyExists
		}
	}

	cp := *user
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	f.users[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) TouchProviderLogin(ctx context.Context, provider models.AuthMethod, providerID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if (provider == models.AuthMethodGoogle && u.GoogleID == providerID) ||
			(provider == models.AuthMethodApple && u.AppleID == providerID) {
			u.LastLogin = time.Now()
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) LinkProvider(ctx context.Context, email string, provider models.AuthMethod, providerID, avatar string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			continue
		}
		if (provider == models.AuthMethodGoogle && u.GoogleID == providerID) ||
			(provider == models.AuthMethodApple && u.AppleID == providerID) {
			return nil, common.ErrorAlreadyExists
		}
	}

	for _, u := range f.users {
		if u.Email != email {
			continue
		}
		switch provider {
		case models.AuthMethodGoogle:
			u.GoogleID = providerID
		case models.AuthMethodApple:
			u.AppleID = providerID
		}
		if !u.HasAuthMethod(provider) {
			u.AuthMethods = append(u.AuthMethods, provider)
		}
		u.IsEmailVerified = true
		if u.Avatar == "" && avatar != "" {
			u.Avatar = avatar
		}
		u.LastLogin = time.Now()
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) SetPendingPassword(ctx context.Context, userID, passwordHash, tokenHash string, expires time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok || u.HasAuthMethod(models.AuthMethodEmail) {
		return nil, common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	u.EmailVerificationToken = tokenHash
	u.EmailVerificationExpires = expires
	return u, nil
}

func (f *fakeUsersRepo) SetVerificationToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.EmailVerificationToken = tokenHash
	u.EmailVerificationExpires = expires
	return u, nil
}

func (f *fakeUsersRepo) ConsumeVerificationToken(ctx context.Context, tokenHash string, addEmailMethod bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.EmailVerificationToken != tokenHash || !u.EmailVerificationExpires.After(time.Now()) {
			continue
		}
		u.IsEmailVerified = true
		u.EmailVerificationToken = ""
		u.EmailVerificationExpires = time.Time{}
		if addEmailMethod && !u.HasAuthMethod(models.AuthMethodEmail) {
			u.AuthMethods = append(u.AuthMethods, models.AuthMethodEmail)
		}
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.PasswordResetToken = tokenHash
	u.PasswordResetExpires = expires
	return u, nil
}

func (f *fakeUsersRepo) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.PasswordResetToken != tokenHash || !u.PasswordResetExpires.After(time.Now()) {
			continue
		}
		u.PasswordHash = passwordHash
		if !u.HasAuthMethod(models.AuthMethodEmail) {
			u.AuthMethods = append(u.AuthMethods, models.AuthMethodEmail)
		}
		u.PasswordResetToken = ""
		u.PasswordResetExpires = time.Time{}
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.LoginAttempts++
	if u.LoginAttempts >= maxAttempts {
		u.IsLocked = true
		u.LockUntil = lockUntil
	}
	return u, nil
}

func (f *fakeUsersRepo) RecordSuccessfulLogin(ctx context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.LastLogin = time.Now()
	u.LoginAttempts = 0
	u.IsLocked = false
	u.LockUntil = time.Time{}
	return u, nil
}

type fakeRepoManager struct {
	repo *fakeUsersRepo
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository              { return m.repo }

// fakeHasher makes hashes cheap and recognizable in assertions.
type fakeHasher struct{}

func (fakeHasher) Hash(plaintext string) (string, error) { return "h:" + plaintext, nil }
func (fakeHasher) Verify(plaintext, hash string) bool    { return "h:"+plaintext == hash }

// recordingNotifier captures triggers; Notify can be forced to fail.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifierCall
	err   error
}

type notifierCall struct {
	template  notifier.Template
	recipient string
	token     string
}

func (n *recordingNotifier) Notify(ctx context.Context, template notifier.Template, recipient string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifierCall{template: template, recipient: recipient, token: token})
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) notifierCall {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) == 0 {
		t.Fatalf("expected at least one notification")
	}
	return n.calls[len(n.calls)-1]
}

// --- wiring helpers ---

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newIdentityService(t *testing.T) (*IdentityService, *fakeUsersRepo, *recordingNotifier) {
	t.Helper()
	repo := newFakeUsersRepo()
	n := &recordingNotifier{}
	s := NewIdentityService(nil, &fakeRepoManager{repo: repo}, fakeHasher{}, n, testLogger(), testConfig())
	return s, repo, n
}

func newLoginService(t *testing.T, repo *fakeUsersRepo) *LoginService {
	t.Helper()
	return NewLoginService(nil, &fakeRepoManager{repo: repo}, fakeHasher{}, testLogger(), testConfig())
}

// sanity: the fakes must satisfy the real interfaces
var (
	_ usersrepo.Repository = (*fakeUsersRepo)(nil)
	_ notifier.Notifier    = (*recordingNotifier)(nil)
)
