package services

import (
	"fmt"
	"strings"

	"github.com/adventuresafari/identity/internal/common"
	"github.com/adventuresafari/identity/internal/models"
)

// Assertion is a proven claim of identity from one of the authentication
// providers, ready for resolution. Provider token exchange and signature
// verification happen before an Assertion is constructed.
type Assertion interface {
	assertion()
}

// PasswordRegistration is a first-party email/password signup request.
// Inputs are assumed validated by the caller.
type PasswordRegistration struct {
	Name     string
	Email    string
	Password string
}

// GoogleAssertion carries the verified Google profile from an OAuth callback.
type GoogleAssertion struct {
	ProviderID  string
	Email       string
	DisplayName string
	AvatarURL   string
}

// AppleAssertion carries the verified Apple profile. Email and DisplayName
// may be empty: Apple users can withhold both.
type AppleAssertion struct {
	ProviderID  string
	Email       string
	DisplayName string
}

func (PasswordRegistration) assertion() {}
func (GoogleAssertion) assertion()      {}
func (AppleAssertion) assertion()       {}

// appleFallbackName is used when an Apple callback carries no display name
// from any source.
const appleFallbackName = "Apple User"

// AppleCallback collects the raw fields an Apple OAuth callback may deliver
// through three channels: the decoded identity token, the profile object,
// and the posted form body. Assertion collapses them once, with a fixed
// precedence, so the resolver never re-derives the fallbacks.
type AppleCallback struct {
	ProviderID   string
	TokenEmail   string
	ProfileEmail string
	FormEmail    string
	ProfileName  string
	FormName     string
}

// Assertion normalizes the callback into a single AppleAssertion.
// Email precedence: decoded-token email, then profile email, then form email.
// Name precedence: profile name, then form name, then a fixed fallback.
func (c AppleCallback) Assertion() AppleAssertion {
	email := firstNonEmpty(c.TokenEmail, c.ProfileEmail, c.FormEmail)
	name := firstNonEmpty(c.ProfileName, c.FormName, appleFallbackName)
	return AppleAssertion{
		ProviderID:  c.ProviderID,
		Email:       email,
		DisplayName: name,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizeEmail case-folds and trims an address. Applied to every email
// before it reaches the store, so the unique constraint sees one form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// placeholderEmail synthesizes a stable address for Apple users who withheld
// their email. Deriving it from the provider id keeps duplicate callbacks
// for the same account colliding on the email unique constraint too.
func placeholderEmail(providerID string) string {
	return fmt.Sprintf("apple-%s@placeholder.appleid.local", common.HashToken(providerID)[:20])
}

// oauthAssertion is the provider-neutral shape GoogleAssertion and
// AppleAssertion reduce to inside the resolver.
type oauthAssertion struct {
	provider   models.AuthMethod
	providerID string
	email      string
	name       string
	avatar     string
}
