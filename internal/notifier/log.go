package notifier

import (
	"context"
	"strings"

	"github.com/adventuresafari/identity/internal/logging"
)

// LogNotifier records notification triggers in the structured log instead of
// delivering mail. Used in development and as a safe default. Recipients are
// masked and the token itself is never written out.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, template Template, recipient string, token string) error {
	n.logger.Info(ctx, "notification triggered",
		"template", string(template),
		"recipient", MaskEmail(recipient),
		"has_token", token != "",
	)
	return nil
}

// MaskEmail redacts an email address for diagnostics, keeping the first
// character of the local part and the domain: "alice@x.com" -> "a***@x.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
