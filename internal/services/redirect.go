package services

import (
	"net/url"

	"github.com/adventuresafari/identity/internal/models"
)

// OAuthSuccessRedirect builds the client redirect target after a successful
// OAuth resolution. The bearer token rides in the query string; when the
// resolved user has no password method yet, an action=set-password hint tells
// the client to offer password setup.
func OAuthSuccessRedirect(clientURL, bearerToken string, user *models.User) string {
	q := url.Values{}
	q.Set("token", bearerToken)
	if !user.HasAuthMethod(models.AuthMethodEmail) {
		q.Set("action", "set-password")
	}
	return clientURL + "/auth/success?" + q.Encode()
}

// OAuthFailureRedirect is the client target for a failed OAuth callback.
func OAuthFailureRedirect(clientURL string) string {
	return clientURL + "/login?error=auth_failed"
}
