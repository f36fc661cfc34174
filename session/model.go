package session

import "time"

// Session is a refresh session issued by the local auth backend. Only the
// SHA-256 of the refresh secret is kept.
type Session struct {
	SessionID   string
	UserID      string
	Email       string
	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// Expired reports whether the session's absolute lifetime ended before now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}
