package types

import "time"

// Session is the server-side record of a user's active login.
// A user has at most one session; logging in again replaces it.
type Session struct {
	// ID is embedded in the bearer token so a replaced session can be told apart.
	ID string `db:"id"`

	UserID string `db:"user_id"`

	// TokenHash is the SHA-256 of the bearer token. The token itself is never stored.
	TokenHash string `db:"token_hash"`

	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// IsExpiredAt reports whether the session is expired at the given time.
func (s Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}
