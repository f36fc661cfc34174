package docportal

import "errors"

var (
	// ErrCredentialInvalid is the explicit expired/invalid credential signal.
	// Backends wrap it so that errors.Is can classify their failures.
	ErrCredentialInvalid = errors.New("credential expired or invalid")
	// ErrInvalidCredentials is returned by backends when an email/password
	// pair is rejected at sign-in.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrBackendUnavailable marks network or availability failures. It is
	// always recoverable.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrAccountExists is returned by backends on duplicate sign-up.
	ErrAccountExists = errors.New("account already exists")
	// ErrSignupInvalid is returned when sign-up input is rejected.
	ErrSignupInvalid = errors.New("invalid sign-up request")
	// ErrRateLimited is returned by backends that throttle auth requests.
	ErrRateLimited = errors.New("too many auth requests")
	// ErrAlreadyInitialized is returned by a second call to Store.Initialize.
	ErrAlreadyInitialized = errors.New("session store already initialized")
	// ErrStoreNotReady is returned when a Store was not built through Builder.
	ErrStoreNotReady = errors.New("session store not initialized")
	// ErrResolveTimeout marks an auth resolution that exceeded its budget.
	ErrResolveTimeout = errors.New("session resolution timed out")
	// ErrSessionExpired is reported when the backend hands back a session
	// whose expiry is already in the past.
	ErrSessionExpired = errors.New("session expired")
)

// IsCredentialError reports whether err carries the explicit
// expired/invalid credential signal. It is the only error class that is
// allowed to clear stored credentials or force a logout.
func IsCredentialError(err error) bool {
	return err != nil && errors.Is(err, ErrCredentialInvalid)
}
