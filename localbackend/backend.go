package localbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
	"github.com/MrEthical07/docportal/internal"
	"github.com/MrEthical07/docportal/internal/authstate"
	"github.com/MrEthical07/docportal/internal/rate"
	"github.com/MrEthical07/docportal/jwt"
	"github.com/MrEthical07/docportal/password"
	"github.com/MrEthical07/docportal/session"
)

// Backend implements docportal.Backend and docportal.CachedSessionReader
// over Redis.
type Backend struct {
	cfg      Config
	redis    redis.UniversalClient
	tokens   *jwt.Manager
	hasher   *password.Argon2
	sessions *session.Store
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time

	state  *authstate.Holder
	events authstate.Broadcaster

	refreshMu sync.Mutex
}

var (
	_ docportal.Backend             = (*Backend)(nil)
	_ docportal.CachedSessionReader = (*Backend)(nil)
)

// New returns a Backend storing server-side records in rdb and the client
// session in kv.
func New(rdb redis.UniversalClient, kv credstore.KV, cfg Config) (*Backend, error) {
	if rdb == nil || kv == nil {
		return nil, errors.New("localbackend: redis client and credential storage are required")
	}
	def := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = def.StorageKey
	}
	if cfg.AutoRefreshTick <= 0 {
		cfg.AutoRefreshTick = def.AutoRefreshTick
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.JWTSecret,
		Issuer:        cfg.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("localbackend: %w", err)
	}
	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("localbackend: %w", err)
	}
	if cfg.Rate.Prefix == "" {
		cfg.Rate.Prefix = cfg.Prefix + ":rl"
	}

	logger := cfg.Logger.With("component", "localbackend")
	return &Backend{
		cfg:      cfg,
		redis:    rdb,
		tokens:   tokens,
		hasher:   hasher,
		sessions: session.NewStore(rdb, cfg.Prefix+":rs"),
		limiter:  rate.New(rdb, cfg.Rate),
		logger:   logger,
		now:      time.Now,
		state:    authstate.NewHolder(kv, cfg.StorageKey, logger),
	}, nil
}

// StorageKey returns the key the client session is persisted under.
func (b *Backend) StorageKey() string {
	return b.cfg.StorageKey
}

// Ping reports Redis round-trip latency.
func (b *Backend) Ping(ctx context.Context) (time.Duration, error) {
	return b.sessions.Ping(ctx)
}

func (b *Backend) Subscribe(fn func(docportal.AuthEvent)) func() {
	return b.events.Subscribe(fn)
}

/* ==== SIGN-IN / SIGN-UP ==== */

func (b *Backend) SignInWithPassword(ctx context.Context, email, pw string) (*docportal.BackendSession, error) {
	email = normalizeEmail(email)
	if err := b.limiter.CheckSignIn(ctx, email); err != nil {
		return nil, b.limitErr(err)
	}

	acct, err := b.lookupAccount(ctx, email)
	if errors.Is(err, errAccountNotFound) {
		b.recordFailure(ctx, email)
		return nil, docportal.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := b.hasher.Verify(pw, acct.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return nil, fmt.Errorf("localbackend: verify password: %w", err)
	}
	if !ok {
		b.recordFailure(ctx, email)
		return nil, docportal.ErrInvalidCredentials
	}
	if err := b.limiter.ResetSignIn(ctx, email); err != nil {
		b.logger.Warn("resetting sign-in budget failed", "error", err)
	}
	b.upgradeHash(ctx, acct, pw)

	sess, err := b.issue(ctx, docportal.Identity{ID: acct.ID, Email: acct.Email})
	if err != nil {
		return nil, err
	}
	if err := b.state.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("localbackend: persist session: %w", err)
	}
	b.events.Emit(docportal.AuthEvent{Kind: docportal.EventSignedIn, Session: sess})
	return sess, nil
}

func (b *Backend) recordFailure(ctx context.Context, email string) {
	if err := b.limiter.RecordSignInFailure(ctx, email); err != nil {
		b.logger.Warn("recording sign-in failure failed", "error", err)
	}
}

func (b *Backend) limitErr(err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		return docportal.ErrRateLimited
	}
	return unavailable(err)
}

// SignUp creates an account. It never changes the client session.
func (b *Backend) SignUp(ctx context.Context, email, pw string) (docportal.Identity, error) {
	email = normalizeEmail(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return docportal.Identity{}, fmt.Errorf("%w: invalid email address", docportal.ErrSignupInvalid)
	}
	if err := b.hasher.CheckLength(pw); err != nil {
		return docportal.Identity{}, fmt.Errorf("%w: %v", docportal.ErrSignupInvalid, err)
	}

	hash, err := b.hasher.Hash(pw)
	if err != nil {
		return docportal.Identity{}, fmt.Errorf("localbackend: hash password: %w", err)
	}
	acct, err := b.createAccount(ctx, email, hash)
	if err != nil {
		return docportal.Identity{}, err
	}
	return docportal.Identity{ID: acct.ID, Email: acct.Email}, nil
}

// issue creates a refresh session and an access token bound to it.
func (b *Backend) issue(ctx context.Context, user docportal.Identity) (*docportal.BackendSession, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	now := b.now()
	rs := &session.Session{
		SessionID:   sid.String(),
		UserID:      user.ID,
		Email:       user.Email,
		RefreshHash: internal.HashRefreshSecret(secret),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(b.cfg.RefreshTTL).Unix(),
	}
	if err := b.sessions.Save(ctx, rs, b.cfg.RefreshTTL); err != nil {
		return nil, unavailable(err)
	}
	return b.mint(user, rs.SessionID, secret)
}

func (b *Backend) mint(user docportal.Identity, sid string, secret [32]byte) (*docportal.BackendSession, error) {
	access, exp, err := b.tokens.CreateAccess(user.ID, user.Email, sid)
	if err != nil {
		return nil, fmt.Errorf("localbackend: sign access token: %w", err)
	}
	refresh, err := internal.EncodeRefreshToken(sid, secret)
	if err != nil {
		return nil, err
	}
	return &docportal.BackendSession{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		User:         user,
	}, nil
}

/* ==== SESSION ==== */

// SignOut deletes the refresh session, then always drops the client session
// and emits SIGNED_OUT. A Redis failure is returned after the local cleanup.
func (b *Backend) SignOut(ctx context.Context) error {
	sess, _ := b.state.Load(ctx)

	var remoteErr error
	if sess != nil {
		if sid, _, err := internal.DecodeRefreshToken(sess.RefreshToken); err == nil {
			if err := b.sessions.Delete(ctx, sid); err != nil {
				remoteErr = unavailable(err)
			}
		}
	}

	if err := b.state.Clear(ctx); err != nil {
		b.logger.Warn("clearing stored session failed", "error", err)
	}
	b.events.Emit(docportal.AuthEvent{Kind: docportal.EventSignedOut})
	return remoteErr
}

// GetSession returns the client session after checking it against the
// server: the access token must verify and its refresh session must still
// exist. A session near expiry is refreshed. A session the server no longer
// honors is dropped and reported as docportal.ErrCredentialInvalid.
func (b *Backend) GetSession(ctx context.Context) (*docportal.BackendSession, error) {
	sess, err := b.state.Load(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	if b.due(sess) {
		return b.refresh(ctx, sess.RefreshToken)
	}

	claims, err := b.tokens.ParseAccess(sess.AccessToken)
	if err != nil {
		return nil, b.revoked(ctx, fmt.Errorf("%w: %v", docportal.ErrCredentialInvalid, err))
	}
	if _, err := b.sessions.Get(ctx, claims.SessionID); err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, unavailable(err)
		}
		return nil, b.revoked(ctx, fmt.Errorf("%w: %v", docportal.ErrCredentialInvalid, err))
	}
	return sess, nil
}

// CachedSession returns the client session without any server check.
func (b *Backend) CachedSession(ctx context.Context) (*docportal.BackendSession, error) {
	return b.state.Load(ctx)
}

// RefreshSession forces a refresh of the current session.
func (b *Backend) RefreshSession(ctx context.Context) (*docportal.BackendSession, error) {
	sess, err := b.state.Load(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	return b.refresh(ctx, sess.RefreshToken)
}

func (b *Backend) due(sess *docportal.BackendSession) bool {
	return !b.now().Add(b.cfg.RefreshMargin).Before(sess.ExpiresAt)
}

// revoked drops the client session, emits SIGNED_OUT and returns cause.
func (b *Backend) revoked(ctx context.Context, cause error) error {
	if err := b.state.Clear(ctx); err != nil {
		b.logger.Warn("clearing stored session failed", "error", err)
	}
	b.events.Emit(docportal.AuthEvent{Kind: docportal.EventSignedOut})
	return cause
}

func (b *Backend) refresh(ctx context.Context, refreshToken string) (*docportal.BackendSession, error) {
	sess, ev, err := b.refreshLocked(ctx, refreshToken)
	if ev != nil {
		b.events.Emit(*ev)
	}
	return sess, err
}

func (b *Backend) refreshLocked(ctx context.Context, refreshToken string) (*docportal.BackendSession, *docportal.AuthEvent, error) {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	cur, err := b.state.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cur == nil {
		return nil, nil, nil
	}
	if cur.RefreshToken != refreshToken {
		return cur, nil, nil
	}

	dropped := &docportal.AuthEvent{Kind: docportal.EventSignedOut}
	drop := func(cause error) (*docportal.BackendSession, *docportal.AuthEvent, error) {
		if err := b.state.Clear(ctx); err != nil {
			b.logger.Warn("clearing stored session failed", "error", err)
		}
		return nil, dropped, fmt.Errorf("%w: %v", docportal.ErrCredentialInvalid, cause)
	}

	sid, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		return drop(err)
	}
	if err := b.limiter.AllowRefresh(ctx, sid); err != nil {
		return nil, nil, b.limitErr(err)
	}

	next, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, nil, err
	}
	rs, err := b.sessions.Rotate(ctx, sid, internal.HashRefreshSecret(secret), internal.HashRefreshSecret(next))
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, nil, unavailable(err)
		}
		return drop(err)
	}

	sess, err := b.mint(docportal.Identity{ID: rs.UserID, Email: rs.Email}, sid, next)
	if err != nil {
		return nil, nil, err
	}
	if err := b.state.Save(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("localbackend: persist session: %w", err)
	}
	return sess, &docportal.AuthEvent{Kind: docportal.EventTokenRefreshed, Session: sess}, nil
}

// AutoRefresh emits INITIAL_SESSION for a live client session, then refreshes
// it whenever it comes within RefreshMargin of expiry. It returns when ctx is
// done.
func (b *Backend) AutoRefresh(ctx context.Context) error {
	if sess, err := b.state.Load(ctx); err == nil && sess != nil && !b.due(sess) {
		b.events.Emit(docportal.AuthEvent{Kind: docportal.EventInitialSession, Session: sess})
	}

	ticker := time.NewTicker(b.cfg.AutoRefreshTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.refreshIfDue(ctx)
		}
	}
}

func (b *Backend) refreshIfDue(ctx context.Context) {
	sess, err := b.state.Load(ctx)
	if err != nil || sess == nil || !b.due(sess) {
		return
	}
	if _, err := b.refresh(ctx, sess.RefreshToken); err != nil && !docportal.IsCredentialError(err) {
		b.logger.Warn("auto refresh failed", "error", err)
	}
}
