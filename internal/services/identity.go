// Package services contains the business logic of the identity core: the
// account-linking resolver, the login guard, and the password flows. Every
// store mutation the services perform is a single conditional operation, so
// concurrent requests for the same identity converge on one record.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/config"
	"github.com/adventuresafari/identity/internal/hashing"
	"github.com/adventuresafari/identity/internal/logging"
	"github.com/adventuresafari/identity/internal/models"
	"github.com/adventuresafari/identity/internal/notifier"
	"github.com/adventuresafari/identity/internal/repositories/repomanager"
	"github.com/google/uuid"
)

// LinkOutcome tags how an assertion was resolved to a user record.
type LinkOutcome string

const (
	// OutcomeCreated: no record existed; a new one was created.
	OutcomeCreated LinkOutcome = "created"
	// OutcomeAlreadyLinked: the provider id already pointed at the record.
	OutcomeAlreadyLinked LinkOutcome = "already_linked"
	// OutcomeLinkedToExisting: the provider was attached to a record found
	// by email.
	OutcomeLinkedToExisting LinkOutcome = "linked_to_existing"
	// OutcomePendingVerificationLink: a password was staged on an OAuth-only
	// account, awaiting email confirmation.
	OutcomePendingVerificationLink LinkOutcome = "pending_verification_link"
)

// TokenPurpose distinguishes what consuming a verification token unlocks.
type TokenPurpose string

const (
	PurposeVerifyEmail TokenPurpose = "verify-email"
	PurposeLinkAccount TokenPurpose = "link-account"
)

// IdentityService resolves identity assertions onto user records, creating
// or linking as needed, and owns the single-use token flows.
type IdentityService struct {
	db                        *sql.DB
	repomanager               repomanager.RepositoryManager
	hasher                    hashing.Hasher
	notifier                  notifier.Notifier
	logger                    logging.Logger
	verificationTokenValidity time.Duration
	resetTokenValidity        time.Duration
}

// NewIdentityService constructs an IdentityService using repositories,
// collaborators, and server config.
func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, h hashing.Hasher, n notifier.Notifier, l logging.Logger, cfg *config.Config) *IdentityService {
	return &IdentityService{
		db:                        db,
		repomanager:               m,
		hasher:                    h,
		notifier:                  n,
		logger:                    l.With("component", "identity"),
		verificationTokenValidity: cfg.VerificationTokenValidity,
		resetTokenValidity:        cfg.ResetTokenValidity,
	}
}

// ResolveAssertion locates or creates the single user record for the given
// assertion. Resolution order is fixed: provider-id match, then email match,
// then creation. A uniqueness violation from the store means a concurrent
// request won the race, so resolution is retried once as a lookup.
func (s *IdentityService) ResolveAssertion(ctx context.Context, a Assertion) (*models.User, LinkOutcome, error) {
	switch v := a.(type) {
	case PasswordRegistration:
		return s.resolveRegistration(ctx, v, false)
	case GoogleAssertion:
		return s.resolveOAuth(ctx, oauthAssertion{
			provider:   models.AuthMethodGoogle,
			providerID: v.ProviderID,
			email:      v.Email,
			name:       v.DisplayName,
			avatar:     v.AvatarURL,
		}, false)
	case AppleAssertion:
		return s.resolveOAuth(ctx, oauthAssertion{
			provider:   models.AuthMethodApple,
			providerID: v.ProviderID,
			email:      v.Email,
			name:       firstNonEmpty(v.DisplayName, appleFallbackName),
		}, false)
	default:
		return nil, "", fmt.Errorf("unknown assertion type %T", a)
	}
}

func (s *IdentityService) resolveRegistration(ctx context.Context, a PasswordRegistration, retried bool) (*models.User, LinkOutcome, error) {
	repo := s.repomanager.Users(s.db)
	email := normalizeEmail(a.Email)

	existing, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.HasAuthMethod(models.AuthMethodEmail) {
			return nil, "", common.ErrDuplicateAccount
		}
		return s.stagePasswordLink(ctx, existing, a.Password, retried, a)

	case errors.Is(err, common.ErrorNotFound):
		// fresh registration below

	default:
		return nil, "", fmt.Errorf("error searching user by email: %w", err)
	}

	hash, err := s.hasher.Hash(a.Password)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	token, tokenHash, err := s.newSingleUseToken()
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:                       uuid.NewString(),
		Name:                     a.Name,
		Email:                    email,
		PasswordHash:             hash,
		AuthMethods:              []models.AuthMethod{models.AuthMethodEmail},
		IsEmailVerified:          false,
		EmailVerificationToken:   tokenHash,
		EmailVerificationExpires: time.Now().Add(s.verificationTokenValidity),
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) && !retried {
			// Lost a create race; the record exists now, resolve against it.
			return s.resolveRegistration(ctx, a, true)
		}
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	s.notify(ctx, notifier.TemplateVerifyEmail, created.Email, token)
	return created, OutcomeCreated, nil
}

// stagePasswordLink stores a pending password hash and a verification token
// on an OAuth-only account. The email auth method is added only when the
// token is consumed with PurposeLinkAccount.
func (s *IdentityService) stagePasswordLink(ctx context.Context, existing *models.User, password string, retried bool, a PasswordRegistration) (*models.User, LinkOutcome, error) {
	repo := s.repomanager.Users(s.db)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	token, tokenHash, err := s.newSingleUseToken()
	if err != nil {
		return nil, "", err
	}

	updated, err := repo.SetPendingPassword(ctx, existing.ID, hash, tokenHash, time.Now().Add(s.verificationTokenValidity))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) && !retried {
			// The account gained the email method (or vanished) concurrently.
			return s.resolveRegistration(ctx, a, true)
		}
		return nil, "", fmt.Errorf("error staging password link: %w", err)
	}

	s.notify(ctx, notifier.TemplateLinkAccount, updated.Email, token)
	return updated, OutcomePendingVerificationLink, nil
}

func (s *IdentityService) resolveOAuth(ctx context.Context, a oauthAssertion, retried bool) (*models.User, LinkOutcome, error) {
	repo := s.repomanager.Users(s.db)

	// 1. Provider-id match always wins.
	user, err := repo.TouchProviderLogin(ctx, a.provider, a.providerID)
	if err == nil {
		return user, OutcomeAlreadyLinked, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, "", fmt.Errorf("error searching user by provider id: %w", err)
	}

	// 2. Email match: attach the provider to the existing record.
	email := normalizeEmail(a.email)
	if email != "" {
		user, err = repo.LinkProvider(ctx, email, a.provider, a.providerID, a.avatar)
		if err == nil {
			return user, OutcomeLinkedToExisting, nil
		}
		if errors.Is(err, common.ErrorAlreadyExists) {
			if retried {
				return nil, "", common.ErrorInternal
			}
			// A concurrent callback attached the provider id first.
			return s.resolveOAuth(ctx, a, true)
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, "", fmt.Errorf("error linking provider: %w", err)
		}
	}

	// 3. No record: create one. Provider-verified emails are trusted, so the
	// account starts verified.
	user = &models.User{
		ID:              uuid.NewString(),
		Name:            a.name,
		Avatar:          a.avatar,
		AuthMethods:     []models.AuthMethod{a.provider},
		IsEmailVerified: true,
		LastLogin:       time.Now(),
	}
	switch a.provider {
	case models.AuthMethodGoogle:
		user.GoogleID = a.providerID
	case models.AuthMethodApple:
		user.AppleID = a.providerID
	}
	if email != "" {
		user.Email = email
	} else {
		user.Email = placeholderEmail(a.providerID)
	}

	created, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) && !retried {
			return s.resolveOAuth(ctx, a, true)
		}
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	if email != "" {
		s.notify(ctx, notifier.TemplateWelcome, created.Email, "")
	}
	return created, OutcomeCreated, nil
}

// ConsumeVerificationToken atomically redeems a pending verification token.
// The matching user is marked verified and, for PurposeLinkAccount, gains the
// email auth method. A token can be consumed exactly once.
func (s *IdentityService) ConsumeVerificationToken(ctx context.Context, token string, purpose TokenPurpose) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.ConsumeVerificationToken(ctx, common.HashToken(token), purpose == PurposeLinkAccount)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("error consuming verification token: %w", err)
	}

	if purpose == PurposeVerifyEmail {
		s.notify(ctx, notifier.TemplateWelcome, user.Email, "")
	}
	return user, nil
}

// ResendVerification issues a fresh verification token for an unverified
// account, replacing any previous one.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return common.ErrAlreadyVerified
	}

	token, tokenHash, err := s.newSingleUseToken()
	if err != nil {
		return err
	}

	if _, err := repo.SetVerificationToken(ctx, user.ID, tokenHash, time.Now().Add(s.verificationTokenValidity)); err != nil {
		return fmt.Errorf("error storing verification token: %w", err)
	}

	s.notify(ctx, notifier.TemplateVerifyEmail, user.Email, token)
	return nil
}

// GetUser loads a user record by id.
func (s *IdentityService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// newSingleUseToken mints a random token, returning the plaintext for the
// emailed link and the digest for storage.
func (s *IdentityService) newSingleUseToken() (token, tokenHash string, err error) {
	token, err = common.MakeRandHexString(common.SingleUseTokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("error generating token: %w", err)
	}
	return token, common.HashToken(token), nil
}

// notify fires a notification trigger. Delivery failures are logged and
// swallowed: they must never roll back the identity mutation that caused
// them.
func (s *IdentityService) notify(ctx context.Context, template notifier.Template, recipient, token string) {
	if err := s.notifier.Notify(ctx, template, recipient, token); err != nil {
		s.logger.Error(ctx, "notification failed",
			"template", string(template),
			"recipient", notifier.MaskEmail(recipient),
			"error", err.Error(),
		)
	}
}
