// Package auth implements TokenRefreshCoordinator, OAuthCallbackServer,
// the credentials store, and RFC 3986 form encoding (spec §4.9-§4.10, §6).
package auth

import (
	"time"
)

// Credentials is the OAuthCredentials value from spec's data model.
// Values are immutable; a refresh produces a new value rather than
// mutating this one in place.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	IDToken      string // optional
	AccountID    string
	LastRefresh  time.Time
}

// IsExpired reports whether more than 24h have passed since LastRefresh.
func (c Credentials) IsExpired(now time.Time) bool {
	return now.Sub(c.LastRefresh) > 24*time.Hour
}

// ShouldRefresh reports whether more than window has passed since
// LastRefresh.
func (c Credentials) ShouldRefresh(now time.Time, window time.Duration) bool {
	return now.Sub(c.LastRefresh) > window
}
