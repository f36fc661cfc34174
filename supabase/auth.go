package supabase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
	"github.com/MrEthical07/docportal/internal/authstate"
)

// Client talks to one hosted project. It implements docportal.Backend and
// docportal.CachedSessionReader.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time

	state  *authstate.Holder
	events authstate.Broadcaster

	// refreshMu serializes refresh grants so a rotated refresh token is
	// never presented twice.
	refreshMu sync.Mutex
}

var (
	_ docportal.Backend             = (*Client)(nil)
	_ docportal.CachedSessionReader = (*Client)(nil)
)

// New returns a Client that persists its session in kv.
func New(cfg Config, kv credstore.KV) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if kv == nil {
		return nil, errors.New("supabase: credential storage is required")
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "supabase")
	return &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: logger,
		now:    time.Now,
		state:  authstate.NewHolder(kv, cfg.StorageKey, logger),
	}, nil
}

// StorageKey returns the key the session is persisted under.
func (c *Client) StorageKey() string {
	return c.cfg.StorageKey
}

/* ==== SESSION PERSISTENCE ==== */

func (c *Client) stored(ctx context.Context) (*docportal.BackendSession, error) {
	return c.state.Load(ctx)
}

func (c *Client) persist(ctx context.Context, sess *docportal.BackendSession) error {
	return c.state.Save(ctx, sess)
}

func (c *Client) forget(ctx context.Context) error {
	return c.state.Clear(ctx)
}

// accessToken returns the bearer for data requests: the session's access
// token when signed in, else the anon key.
func (c *Client) accessToken(ctx context.Context) string {
	sess, err := c.stored(ctx)
	if err != nil || sess == nil {
		return ""
	}
	return sess.AccessToken
}

// Subscribe registers fn for auth-state changes.
func (c *Client) Subscribe(fn func(docportal.AuthEvent)) func() {
	return c.events.Subscribe(fn)
}

func (c *Client) emit(ev docportal.AuthEvent) {
	c.events.Emit(ev)
}

/* ==== AUTH ==== */

func (c *Client) tokenGrant(ctx context.Context, grant string, body interface{}) (*docportal.BackendSession, error) {
	var out authstate.Persisted
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Session(c.now())
}

// SignInWithPassword exchanges email and password for a session, persists
// it and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*docportal.BackendSession, error) {
	sess, err := c.tokenGrant(ctx, "password", map[string]string{
		"email":    strings.TrimSpace(email),
		"password": password,
	})
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Err == nil &&
			(apiErr.Status == http.StatusBadRequest || apiErr.Code == "invalid_credentials") {
			apiErr.Err = docportal.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := c.persist(ctx, sess); err != nil {
		return nil, fmt.Errorf("supabase: persist session: %w", err)
	}
	c.emit(docportal.AuthEvent{Kind: docportal.EventSignedIn, Session: sess})
	return sess, nil
}

// SignUp registers a new account. It never changes the current session,
// even when the project auto-confirms and returns one.
func (c *Client) SignUp(ctx context.Context, email, password string) (docportal.Identity, error) {
	var out struct {
		authstate.User
		Nested *authstate.User `json:"user"`
	}
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]string{
			"email":    strings.TrimSpace(email),
			"password": password,
		},
	}, &out)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Err == nil {
			switch {
			case apiErr.Code == "user_already_exists" || apiErr.Code == "email_exists" ||
				strings.Contains(strings.ToLower(apiErr.Message), "already registered"):
				apiErr.Err = docportal.ErrAccountExists
			case apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnprocessableEntity:
				apiErr.Err = docportal.ErrSignupInvalid
			}
		}
		return docportal.Identity{}, err
	}

	user := out.User
	if out.Nested != nil {
		user = *out.Nested
	}
	if user.ID == "" {
		return docportal.Identity{}, errors.New("supabase: sign-up response without user")
	}
	// An existing confirmed address comes back as a user with no identities.
	if user.Identities != nil && len(user.Identities) == 0 {
		return docportal.Identity{}, &APIError{Status: http.StatusOK, Code: "user_already_exists", Err: docportal.ErrAccountExists}
	}
	return docportal.Identity{ID: user.ID, Email: user.Email}, nil
}

// SignOut revokes the session remotely, then always drops it locally and
// emits SIGNED_OUT. A remote failure is returned after the local cleanup.
func (c *Client) SignOut(ctx context.Context) error {
	sess, _ := c.stored(ctx)

	var remoteErr error
	if sess != nil {
		_, err := c.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			query:  url.Values{"scope": {"local"}},
			bearer: sess.AccessToken,
		}, nil)
		// An already invalid session is signed out as far as the server is
		// concerned.
		if err != nil && !docportal.IsCredentialError(err) {
			if apiErr, ok := asAPIError(err); !ok || apiErr.Status != http.StatusNotFound {
				remoteErr = err
			}
		}
	}

	if err := c.forget(ctx); err != nil {
		c.logger.Warn("clearing stored session failed", "error", err)
	}
	c.emit(docportal.AuthEvent{Kind: docportal.EventSignedOut})
	return remoteErr
}

// GetSession returns the persisted session, refreshing it first when it is
// within RefreshMargin of expiry. A rejected refresh token clears the
// session and returns an error matching docportal.ErrCredentialInvalid.
func (c *Client) GetSession(ctx context.Context) (*docportal.BackendSession, error) {
	sess, err := c.stored(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if !c.due(sess) {
		return sess, nil
	}
	return c.refresh(ctx, sess.RefreshToken)
}

// CachedSession returns the persisted session without any network call.
func (c *Client) CachedSession(ctx context.Context) (*docportal.BackendSession, error) {
	return c.stored(ctx)
}

// RefreshSession forces a refresh grant for the current session.
func (c *Client) RefreshSession(ctx context.Context) (*docportal.BackendSession, error) {
	sess, err := c.stored(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return c.refresh(ctx, sess.RefreshToken)
}

func (c *Client) due(sess *docportal.BackendSession) bool {
	return !c.now().Add(c.cfg.RefreshMargin).Before(sess.ExpiresAt)
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*docportal.BackendSession, error) {
	sess, ev, err := c.refreshLocked(ctx, refreshToken)
	if ev != nil {
		c.emit(*ev)
	}
	return sess, err
}

func (c *Client) refreshLocked(ctx context.Context, refreshToken string) (*docportal.BackendSession, *docportal.AuthEvent, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have rotated or dropped the session while this one
	// waited.
	cur, err := c.stored(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, nil
	}
	if cur.RefreshToken != refreshToken {
		return cur, nil, nil
	}
	if refreshToken == "" {
		return nil, nil, fmt.Errorf("%w: no refresh token", docportal.ErrCredentialInvalid)
	}

	next, err := c.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.Err == nil && apiErr.Status == http.StatusBadRequest {
			apiErr.Err = docportal.ErrCredentialInvalid
		}
		if docportal.IsCredentialError(err) {
			if ferr := c.forget(ctx); ferr != nil {
				c.logger.Warn("clearing stored session failed", "error", ferr)
			}
			return nil, &docportal.AuthEvent{Kind: docportal.EventSignedOut}, err
		}
		return nil, nil, err
	}

	if err := c.persist(ctx, next); err != nil {
		return nil, nil, fmt.Errorf("supabase: persist session: %w", err)
	}
	return next, &docportal.AuthEvent{Kind: docportal.EventTokenRefreshed, Session: next}, nil
}

// AutoRefresh emits INITIAL_SESSION for a live persisted session, then
// refreshes the session whenever it comes within RefreshMargin of expiry.
// Start it after the Store has initialized. It returns when ctx is done.
func (c *Client) AutoRefresh(ctx context.Context) error {
	if sess, err := c.stored(ctx); err == nil && sess != nil && !c.due(sess) {
		c.emit(docportal.AuthEvent{Kind: docportal.EventInitialSession, Session: sess})
	}

	ticker := time.NewTicker(c.cfg.AutoRefreshTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refreshIfDue(ctx)
		}
	}
}

func (c *Client) refreshIfDue(ctx context.Context) {
	sess, err := c.stored(ctx)
	if err != nil || sess == nil || !c.due(sess) {
		return
	}
	if _, err := c.refresh(ctx, sess.RefreshToken); err != nil {
		if docportal.IsCredentialError(err) {
			c.logger.Info("refresh token rejected, session dropped")
			return
		}
		c.logger.Warn("auto refresh failed", "error", err)
	}
}
