package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/notifier"
)

func TestRequestPasswordReset(t *testing.T) {
	s, repo, n := newIdentityService(t)
	ctx := context.Background()

	repo.add(&models.User{
		ID:              "u1",
		Email:           "alice@example.com",
		PasswordHash:    "h:old",
		AuthMethods:     []models.AuthMethod{models.AuthMethodEmail},
		IsEmailVerified: true,
	})

	if err := s.RequestPasswordReset(ctx, "Alice@Example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := n.last(t)
	if call.template != notifier.TemplatePasswordReset {
		t.Errorf("expected password-reset notification, got %q", call.template)
	}

	u, _ := repo.GetByID(ctx, "u1")
	if u.PasswordResetToken != common.HashToken(call.token) {
		t.Errorf("stored token must be the digest of the emailed one")
	}
	if !u.PasswordResetExpires.After(time.Now()) {
		t.Errorf("reset token must carry a future expiry")
	}
}

func TestRequestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	s, _, n := newIdentityService(t)

	if err := s.RequestPasswordReset(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown address must not error: %v", err)
	}
	if len(n.calls) != 0 {
		t.Errorf("unknown address must not trigger a notification")
	}
}

func TestResetPassword(t *testing.T) {
	s, repo, _ := newIdentityService(t)
	ctx := context.Background()

	repo.add(&models.User{
		ID:              "u1",
		Email:           "alice@example.com",
		PasswordHash:    "h:old",
		AuthMethods:     []models.AuthMethod{models.AuthMethodEmail},
		IsEmailVerified: true,
	})
	if err := s.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := lastToken(t, s)

	user, err := s.ResetPassword(ctx, token, "brand-new")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.PasswordHash != "h:brand-new" {
		t.Errorf("expected replaced hash, got %q", user.PasswordHash)
	}
	if user.PasswordResetToken != "" {
		t.Errorf("token must be cleared on redemption")
	}

	// single use
	if _, err := s.ResetPassword(ctx, token, "again"); !errors.Is(err, common.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken on reuse, got %v", err)
	}
}

func TestResetPassword_SetsPasswordOnOAuthOnlyAccount(t *testing.T) {
	s, repo, _ := newIdentityService(t)
	ctx := context.Background()

	repo.add(&models.User{
		ID:              "u1",
		Email:           "alice@example.com",
		GoogleID:        "g-123",
		AuthMethods:     []models.AuthMethod{models.AuthMethodGoogle},
		IsEmailVerified: true,
	})
	if err := s.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token := lastToken(t, s)

	user, err := s.ResetPassword(ctx, token, "first-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !user.HasAuthMethod(models.AuthMethodEmail) {
		t.Errorf("reset on an OAuth-only account must add the email method, got %v", user.AuthMethods)
	}
	if !user.HasAuthMethod(models.AuthMethodGoogle) {
		t.Errorf("provider method must survive, got %v", user.AuthMethods)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	s, repo, _ := newIdentityService(t)
	ctx := context.Background()

	token, _ := common.MakeRandHexString(common.SingleUseTokenBytes)
	repo.add(&models.User{
		ID:                   "u1",
		Email:                "alice@example.com",
		AuthMethods:          []models.AuthMethod{models.AuthMethodEmail},
		PasswordResetToken:   common.HashToken(token),
		PasswordResetExpires: time.Now().Add(-time.Minute),
	})

	if _, err := s.ResetPassword(ctx, token, "new"); !errors.Is(err, common.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}
