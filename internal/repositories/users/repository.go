package users

import (
	"context"
	"time"

	"github.com/adventuresafari/identity/internal/models"
)

// Repository is the credential store contract consumed by the identity
// resolver and the login guard. Every mutating method is a single conditional
// statement against the store: callers never read a record and write it back
// in two steps, so concurrent requests for the same identity cannot produce
// duplicate users or lost updates. Methods that match no row return
// common.ErrorNotFound; inserts and provider attachments that hit a unique
// constraint return common.ErrorAlreadyExists.
type Repository interface {
	// Create inserts a new user record, relying on the unique constraints on
	// email and provider ids to reject duplicates.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// TouchProviderLogin finds a user by provider id and stamps last_login in
	// the same statement.
	TouchProviderLogin(ctx context.Context, provider models.AuthMethod, providerID string) (*models.User, error)

	// LinkProvider attaches a provider id to the user with the given email,
	// adds the provider to the auth-method set, forces the email verified,
	// and stamps last_login. For Google, a non-empty avatar is applied only
	// when the user has none.
	LinkProvider(ctx context.Context, email string, provider models.AuthMethod, providerID, avatar string) (*models.User, error)

	// SetPendingPassword stores a password hash and a verification token on
	// an account that does not yet have the email auth method. The method
	// itself is added only when the token is consumed.
	SetPendingPassword(ctx context.Context, userID, passwordHash, tokenHash string, expires time.Time) (*models.User, error)

	// SetVerificationToken replaces the pending email-verification token.
	SetVerificationToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error)

	// ConsumeVerificationToken finds the user holding an unexpired token with
	// the given hash, clears the token, and marks the email verified, all in
	// one statement. When addEmailMethod is true the email auth method is
	// added as well.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, addEmailMethod bool) (*models.User, error)

	// SetPasswordResetToken stores a reset token and its expiry.
	SetPasswordResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) (*models.User, error)

	// ConsumePasswordResetToken finds the user holding an unexpired reset
	// token, replaces the password hash, adds the email auth method, and
	// clears the token in one statement.
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string) (*models.User, error)

	// RecordFailedLogin increments the attempt counter and, when the
	// incremented value reaches maxAttempts, sets the lock window ending at
	// lockUntil, in one statement.
	RecordFailedLogin(ctx context.Context, userID string, maxAttempts int, lockUntil time.Time) (*models.User, error)

	// RecordSuccessfulLogin stamps last_login and clears the attempt counter
	// and lock fields.
	RecordSuccessfulLogin(ctx context.Context, userID string) (*models.User, error)
}
