// Package notifier defines the trigger points for transactional email.
// Delivery itself lives outside this core: implementations receive a template
// id, a recipient, and an optional single-use token for the emailed link, and
// whatever they do with them is fire-and-forget from the caller's point of
// view.
package notifier

import "context"

// Template identifies one of the fixed transactional email templates.
type Template string

const (
	TemplateVerifyEmail   Template = "verify-email"
	TemplateLinkAccount   Template = "link-account"
	TemplatePasswordReset Template = "password-reset"
	TemplateWelcome       Template = "welcome"
)

// Notifier delivers a templated notification to a recipient. The token, when
// non-empty, is the plaintext single-use token to embed in the emailed link.
// Errors are reported so callers can log them, but callers must never fail
// the triggering identity mutation because of one.
type Notifier interface {
	Notify(ctx context.Context, template Template, recipient string, token string) error
}
