package models

import "time"

// RefreshToken is the server-side record behind an opaque refresh token.
// Deleting the row revokes the token.
type RefreshToken struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
