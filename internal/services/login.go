package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/config"
	"github.com/adventuresafari/identity/internal/hashing"
	"github.com/adventuresafari/identity/internal/logging"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/notifier"
	"github.com/adventuresafari/identity/internal/repositories/repomanager"
)

// AlternateProviderError signals a password login against an account that
// has no password method, hinting which providers can be used instead.
// Matched with errors.As.
type AlternateProviderError struct {
	Providers []models.AuthMethod
}

func (e *AlternateProviderError) Error() string {
	names := make([]string, 0, len(e.Providers))
	for _, p := range e.Providers {
		names = append(names, string(p))
	}
	return fmt.Sprintf("account has no password; sign in with: %s", strings.Join(names, ", "))
}

// LoginService is the login guard: password verification wrapped with
// failed-attempt counting and temporary lockout.
type LoginService struct {
	db               *sql.DB
	repomanager      repomanager.RepositoryManager
	hasher           hashing.Hasher
	logger           logging.Logger
	maxLoginAttempts int
	lockoutDuration  time.Duration
}

// NewLoginService constructs a LoginService using repositories and server
// config.
func NewLoginService(db *sql.DB, m repomanager.RepositoryManager, h hashing.Hasher, l logging.Logger, cfg *config.Config) *LoginService {
	return &LoginService{
		db:               db,
		repomanager:      m,
		hasher:           h,
		logger:           l.With("component", "login"),
		maxLoginAttempts: cfg.MaxLoginAttempts,
		lockoutDuration:  cfg.LockoutDuration,
	}
}

// AuthenticatePassword verifies an email/password pair.
//
// Failure modes, in evaluation order: common.ErrInvalidCredentials for an
// unknown email; *AlternateProviderError when the account has no email auth
// method; common.ErrAccountLocked while a lockout window is active;
// common.ErrInvalidCredentials on a wrong password (the attempt counter is
// incremented and the account locked when it reaches the threshold — the
// caller cannot tell the two apart, so probing does not reveal lockout
// state); common.ErrEmailNotVerified on a correct password for an unverified
// account. On success the attempt counter and any lock are cleared and
// last_login is stamped, all in one statement.
func (s *LoginService) AuthenticatePassword(ctx context.Context, email, password string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error searching user by email: %w", err)
	}

	if !user.HasAuthMethod(models.AuthMethodEmail) {
		return nil, &AlternateProviderError{Providers: user.AuthMethods}
	}

	now := time.Now()
	if user.LockActive(now) {
		return nil, common.ErrAccountLocked
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		updated, recErr := repo.RecordFailedLogin(ctx, user.ID, s.maxLoginAttempts, now.Add(s.lockoutDuration))
		if recErr != nil {
			s.logger.Error(ctx, "failed to record login attempt",
				"recipient", notifier.MaskEmail(user.Email), "error", recErr.Error())
		} else if updated.IsLocked {
			s.logger.Warn(ctx, "account locked after repeated failures",
				"recipient", notifier.MaskEmail(user.Email), "attempts", updated.LoginAttempts)
		}
		return nil, common.ErrInvalidCredentials
	}

	if !user.IsEmailVerified {
		return nil, common.ErrEmailNotVerified
	}

	updated, err := repo.RecordSuccessfulLogin(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error recording login: %w", err)
	}

	return updated, nil
}
