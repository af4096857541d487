// Package models holds the persistent entities of the identity service.
package models

import (
	"strings"
	"time"
)

// AuthMethod is one of the authentication providers a user may hold.
type AuthMethod string

const (
	AuthMethodEmail  AuthMethod = "email"
	AuthMethodGoogle AuthMethod = "google"
	AuthMethodApple  AuthMethod = "apple"
)

// User is the sole persistent entity: one record per email address, holding
// every authentication method linked to that identity.
//
// Optional columns map to Go zero values: an empty string means the column is
// NULL, a zero time.Time means no timestamp is set. PasswordHash may be set
// while AuthMethodEmail is still absent from AuthMethods: that is the
// pending-link state, resolved when the verification token is consumed.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	GoogleID     string
	AppleID      string
	Avatar       string
	AuthMethods  []AuthMethod

	IsEmailVerified          bool
	EmailVerificationToken   string
	EmailVerificationExpires time.Time
	PasswordResetToken       string
	PasswordResetExpires     time.Time

	LoginAttempts int
	IsLocked      bool
	LockUntil     time.Time

	LastLogin time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAuthMethod reports whether m is among the user's linked auth methods.
func (u *User) HasAuthMethod(m AuthMethod) bool {
	for _, am := range u.AuthMethods {
		if am == m {
			return true
		}
	}
	return false
}

// LockActive reports whether the user's lockout window covers the given time.
func (u *User) LockActive(now time.Time) bool {
	return u.IsLocked && u.LockUntil.After(now)
}

// JoinAuthMethods renders the set in its storage form, a comma-joined string.
func JoinAuthMethods(methods []AuthMethod) string {
	parts := make([]string, 0, len(methods))
	for _, m := range methods {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, ",")
}

// ParseAuthMethods parses the storage form back into a slice. Unknown or
// empty entries are dropped.
func ParseAuthMethods(s string) []AuthMethod {
	if s == "" {
		return nil
	}
	var methods []AuthMethod
	for _, p := range strings.Split(s, ",") {
		switch m := AuthMethod(strings.TrimSpace(p)); m {
		case AuthMethodEmail, AuthMethodGoogle, AuthMethodApple:
			methods = append(methods, m)
		}
	}
	return methods
}
