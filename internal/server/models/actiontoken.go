package models

import "time"

// Purpose scopes an action token to the single operation it authorises.
type Purpose string

const (
	PurposeResetPassword     Purpose = "reset-password"
	PurposeEmailVerification Purpose = "email-verification"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeResetPassword, PurposeEmailVerification:
		return true
	}
	return false
}

// ActionToken is a single-use, time-boxed credential. It is deleted when
// consumed, whether or not it had already expired.
type ActionToken struct {
	Token     string
	UserID    string
	Purpose   Purpose
	ExpiresAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *ActionToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
