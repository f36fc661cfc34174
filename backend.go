package docportal

import (
	"context"
	"time"
)

// BackendSession is the credential bundle issued by the backend.
type BackendSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether ExpiresAt is set and strictly before now.
func (s *BackendSession) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.Before(now)
}

// AuthEventKind enumerates backend auth-state notifications.
type AuthEventKind uint8

const (
	// EventInitialSession is emitted once when a subscriber attaches.
	EventInitialSession AuthEventKind = iota
	// EventSignedIn is emitted after a successful sign-in.
	EventSignedIn
	// EventSignedOut is emitted after sign-out or credential revocation.
	EventSignedOut
	// EventTokenRefreshed is emitted after a silent token refresh.
	EventTokenRefreshed
	// EventUserUpdated is emitted when the backend identity record changes.
	EventUserUpdated
)

// String returns the event name.
func (k AuthEventKind) String() string {
	switch k {
	case EventInitialSession:
		return "INITIAL_SESSION"
	case EventSignedIn:
		return "SIGNED_IN"
	case EventSignedOut:
		return "SIGNED_OUT"
	case EventTokenRefreshed:
		return "TOKEN_REFRESHED"
	case EventUserUpdated:
		return "USER_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// AuthEvent is a backend auth-state notification.
//
// Session is nil when the backend holds no session. Err carries a failure
// observed by the backend while producing the event; a credential error there
// forces a logout.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *BackendSession
	Err     error
}

// AuthBackend is the authentication half of the backend capability.
type AuthBackend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*BackendSession, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current session, or nil with a nil error when
	// none is held.
	GetSession(ctx context.Context) (*BackendSession, error)
	// Subscribe registers fn for auth-state notifications. The returned
	// function detaches fn.
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// UserRecords is the user-record table half of the backend capability.
type UserRecords interface {
	// GetRole returns the stored role for userID. found is false when no
	// record exists.
	GetRole(ctx context.Context, userID string) (role Role, found bool, err error)
	InsertUser(ctx context.Context, identity Identity, role Role) error
}

// Backend is the full capability the Store depends on.
type Backend interface {
	AuthBackend
	UserRecords
}

// CachedSessionReader is implemented by backend clients that can return the
// session they persisted locally without a network call. The Store uses it to
// keep a still-valid identity when the remote check is inconclusive.
type CachedSessionReader interface {
	CachedSession(ctx context.Context) (*BackendSession, error)
}
