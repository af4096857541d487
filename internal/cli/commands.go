package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/adventuresafari/identity/internal/auth"
	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/services"
)

// inputText and inputPassword are indirections over the interactive input
// helpers, swappable in tests.
var inputText = getSimpleText
var inputPassword = getPassword

// Register prompts for a name, email, and password and resolves the
// registration. The follow-up step differs by outcome: a fresh account waits
// for a verification token, an OAuth-only account waits for a link token.
func (a *App) Register(ctx context.Context) error {
	name, err := inputText(a.reader, "Enter name", a.out)
	if err != nil {
		return err
	}
	email, err := inputText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := inputPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	user, outcome, err := a.identity.ResolveAssertion(ctx, services.PasswordRegistration{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateAccount) {
			return fmt.Errorf("an account with this email already exists")
		}
		return err
	}

	switch outcome {
	case services.OutcomePendingVerificationLink:
		fmt.Fprintln(a.out, "This email already signs in with another provider.")
		fmt.Fprintln(a.out, "Check your inbox and redeem the token with: link <token>")
	default:
		fmt.Fprintln(a.out, "Account created. Check your inbox and redeem the token with: verify <token>")
	}
	a.printUser(user)
	return nil
}

// Login prompts for credentials, authenticates, and on success issues a
// bearer token for the session.
func (a *App) Login(ctx context.Context) error {
	email, err := inputText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := inputPassword("Enter password", a.out)
	if err != nil {
		return err
	}

	user, err := a.login.AuthenticatePassword(ctx, email, password)
	if err != nil {
		var alt *services.AlternateProviderError
		switch {
		case errors.As(err, &alt):
			return fmt.Errorf("this account has no password; sign in with %v or run 'forgot' to set one", alt.Providers)
		case errors.Is(err, common.ErrAccountLocked):
			return fmt.Errorf("account temporarily locked, try again later")
		case errors.Is(err, common.ErrEmailNotVerified):
			return fmt.Errorf("email not verified; run 'resend' to get a new token")
		case errors.Is(err, common.ErrInvalidCredentials):
			return fmt.Errorf("invalid email or password")
		}
		return err
	}

	token, err := auth.GenerateToken(user.ID, []byte(a.config.SecretKey), a.config.BearerTokenValidity)
	if err != nil {
		return fmt.Errorf("error issuing bearer token: %w", err)
	}

	a.bearerToken = token
	a.userEmail = user.Email
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

// Logout drops the session token.
func (a *App) Logout() {
	a.bearerToken = ""
	a.userEmail = ""
	fmt.Fprintln(a.out, "Logged out")
}

// Verify redeems an email verification token.
func (a *App) Verify(ctx context.Context, args []string) error {
	return a.consumeToken(ctx, args, services.PurposeVerifyEmail, "verify")
}

// Link redeems an account-link token, which finishes adding a password to an
// OAuth-only account.
func (a *App) Link(ctx context.Context, args []string) error {
	return a.consumeToken(ctx, args, services.PurposeLinkAccount, "link")
}

func (a *App) consumeToken(ctx context.Context, args []string, purpose services.TokenPurpose, cmd string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <token>", cmd)
	}

	user, err := a.identity.ConsumeVerificationToken(ctx, args[0], purpose)
	if err != nil {
		if errors.Is(err, common.ErrInvalidOrExpiredToken) {
			return fmt.Errorf("invalid or expired token")
		}
		return err
	}

	fmt.Fprintln(a.out, "Token accepted")
	a.printUser(user)
	return nil
}

// Resend requests a fresh verification token for an unverified account.
func (a *App) Resend(ctx context.Context) error {
	email, err := inputText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.identity.ResendVerification(ctx, email); err != nil {
		if errors.Is(err, common.ErrAlreadyVerified) {
			return fmt.Errorf("this account is already verified")
		}
		return err
	}

	fmt.Fprintln(a.out, "Verification token sent")
	return nil
}

// Forgot requests a password reset token. The response is identical whether
// or not the address has an account.
func (a *App) Forgot(ctx context.Context) error {
	email, err := inputText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	if err := a.identity.RequestPasswordReset(ctx, email); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "If the address has an account, a reset token was sent. Redeem it with: reset <token>")
	return nil
}

// Reset redeems a password reset token with a new password.
func (a *App) Reset(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: reset <token>")
	}

	password, err := inputPassword("Enter new password", a.out)
	if err != nil {
		return err
	}

	user, err := a.identity.ResetPassword(ctx, args[0], password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidOrExpiredToken) {
			return fmt.Errorf("invalid or expired token")
		}
		return err
	}

	fmt.Fprintln(a.out, "Password updated")
	a.printUser(user)
	return nil
}

// Me shows the record behind the session's bearer token.
func (a *App) Me(ctx context.Context) error {
	if !a.isLoggedIn() {
		return fmt.Errorf("not logged in")
	}

	userID, err := auth.GetUserIDFromToken(a.bearerToken, []byte(a.config.SecretKey))
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			a.Logout()
			return fmt.Errorf("session expired, log in again")
		}
		return err
	}

	user, err := a.identity.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	a.printUser(user)
	return nil
}
