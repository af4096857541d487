package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/notifier"
)

// RequestPasswordReset issues a single-use reset token and triggers the
// password-reset notification. The same trigger covers both a reset for
// email-auth users and first-time password setup for OAuth-only users; only
// the resulting state transition differs. Unknown addresses are ignored so
// callers cannot probe for account existence.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching user by email: %w", err)
	}

	token, tokenHash, err := s.newSingleUseToken()
	if err != nil {
		return err
	}

	if _, err := repo.SetPasswordResetToken(ctx, user.ID, tokenHash, time.Now().Add(s.resetTokenValidity)); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}

	s.notify(ctx, notifier.TemplatePasswordReset, user.Email, token)
	return nil
}

// ResetPassword redeems a reset token: the new hash replaces the old one and
// the email auth method is added, which is what turns an OAuth-only account
// into one that can also log in with a password. The token is cleared in the
// same statement, so it cannot be redeemed twice.
func (s *IdentityService) ResetPassword(ctx context.Context, token, newPassword string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := repo.ConsumePasswordResetToken(ctx, common.HashToken(token), hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("error consuming reset token: %w", err)
	}

	return user, nil
}
