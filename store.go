package docportal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/docportal/internal/audit"
)

type initPhase uint8

const (
	phaseIdle initPhase = iota
	phaseRunning
	phaseDone
)

// Store owns the single Session of the process.
//
// Every mutating path takes a ticket when it starts. A commit is applied only
// when its ticket is newer than the last applied one, so the latest arrival
// wins regardless of which backend call returns first. Backend calls never
// run under the lock.
type Store struct {
	cfg     Config
	backend Backend
	storage CredentialStorage
	logger  *slog.Logger
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	now     func() time.Time

	tickets atomic.Uint64

	mu       sync.Mutex
	state    Snapshot
	applied  uint64
	version  uint64
	phase    initPhase
	deferred *AuthEvent
	watchers map[uint64]chan Snapshot
	watchSeq uint64
	closed   bool

	rechecking  atomic.Bool
	unsubscribe func()
	bg          sync.WaitGroup
}

// Snapshot returns the current Session.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Config returns a copy of the configuration the Store was built with.
func (s *Store) Config() Config {
	return cloneConfig(s.cfg)
}

// Metrics returns the Store's counter set.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Watch returns a channel that always holds the most recent Snapshot. Slow
// readers skip intermediate values. cancel detaches and closes the channel.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	ch <- s.state
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(c)
			}
		})
	}
}

// Initialize recovers any persisted identity. It may be called once.
//
// With no credential marker in storage it resolves to no identity without a
// backend call. Otherwise the backend session is fetched within
// Session.InitTimeout: a timeout or non-credential error is inconclusive and
// leaves storage alone, while a credential error or an already expired
// session clears the markers. Events received before Initialize returns are
// deferred and the latest one is applied after the initial commit.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreNotReady
	}
	if s.phase != phaseIdle {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.phase = phaseRunning
	if s.state.Resolving() {
		// the budget covers the resolution itself, not the wait for a caller
		s.state.ResolvingSince = s.now()
	}
	s.mu.Unlock()

	start := s.now()
	s.bootstrap(ctx, s.nextTicket())
	s.metrics.Observe(MetricResolveLatency, s.now().Sub(start))

	s.mu.Lock()
	s.phase = phaseDone
	pending := s.deferred
	s.deferred = nil
	var replay uint64
	if pending != nil {
		replay = s.nextTicket()
	}
	closed := s.closed
	s.mu.Unlock()

	if pending != nil && !closed {
		s.logger.Debug("replaying deferred auth event", "event", pending.Kind.String())
		s.applyEvent(ctx, *pending, replay)
	}
	return nil
}

func (s *Store) bootstrap(ctx context.Context, ticket uint64) {
	if !hasStoredCredentials(ctx, s.storage, s.cfg.Storage) {
		s.metrics.Inc(MetricInitNoMarker)
		s.commit(ticket, signedOut)
		return
	}

	sess, err := boundedCall(ctx, s.cfg.Session.InitTimeout, s.backend.GetSession)
	switch {
	case IsCredentialError(err):
		s.logger.Warn("stored credential rejected during init", "error", err)
		s.forceLogout(ctx, ticket, "init_credential_error", err)
	case err != nil:
		s.metrics.Inc(MetricInitInconclusive)
		s.logger.Warn("session check inconclusive, keeping last known state", "error", err)
		s.resolveInconclusive(ctx, ticket)
	case sess == nil:
		s.commit(ticket, signedOut)
	case sess.Expired(s.now()):
		s.logger.Info("stored session already expired", "expires_at", sess.ExpiresAt)
		s.forceLogout(ctx, ticket, "init_session_expired", ErrSessionExpired)
	default:
		s.adoptSession(ctx, ticket, sess.User, true)
	}
	s.metrics.Inc(MetricInitResolved)
}

// resolveInconclusive settles the Session after a slow or failed check. A
// still-valid cached session known to the backend client is kept; otherwise
// the Session stays as it was.
func (s *Store) resolveInconclusive(ctx context.Context, ticket uint64) {
	if reader, ok := s.backend.(CachedSessionReader); ok {
		cached, err := reader.CachedSession(ctx)
		if err == nil && cached != nil && !cached.Expired(s.now()) {
			s.adoptSession(ctx, ticket, cached.User, true)
			return
		}
	}
	s.commit(ticket, func(next *Snapshot) {
		next.Status = StatusResolved
	})
}

// Login authenticates with the backend and, on success, resolves the role of
// the returned identity. On failure the Session is left unchanged.
func (s *Store) Login(ctx context.Context, email, password string) (LoginResult, error) {
	ticket := s.nextTicket()

	sess, err := s.backend.SignInWithPassword(ctx, email, password)
	if err == nil && sess == nil {
		err = fmt.Errorf("%w: sign-in returned no session", ErrBackendUnavailable)
	}
	if err != nil {
		s.metrics.Inc(MetricLoginFailure)
		s.emitAudit(ctx, AuditLoginFailure, &Identity{Email: email}, "", false, err, nil)
		return LoginResult{}, err
	}

	role, forced := s.resolveRole(ctx, sess.User)
	if forced {
		s.metrics.Inc(MetricLoginFailure)
		s.forceLogout(ctx, ticket, "login_role_credential_error", ErrCredentialInvalid)
		return LoginResult{}, fmt.Errorf("%w: role lookup rejected new session", ErrCredentialInvalid)
	}

	user := sess.User
	if !s.commit(ticket, signedIn(user, role, true)) {
		s.logger.Debug("login commit superseded by a newer session update", "user_id", user.ID)
	}

	// a newer update may have won the ticket race; report what the Session holds
	snap := s.Snapshot()
	if snap.Identity == nil || snap.Identity.ID != user.ID {
		s.logger.Info("login result replaced by a newer session update", "user_id", user.ID)
		return LoginResult{Snapshot: snap, Destination: s.cfg.Gate.PublicPath}, nil
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.emitAudit(ctx, AuditLoginSuccess, &user, snap.Role, true, nil, nil)

	dest := s.cfg.Gate.PublicPath
	if snap.Role.IsAdmin() {
		dest = s.cfg.Gate.AdminPath
	}
	return LoginResult{Snapshot: snap, Destination: dest}, nil
}

// Logout signs out remotely and always leaves the Session unauthenticated
// with markers cleared. Remote failures are logged and swallowed. It returns
// the navigation target.
func (s *Store) Logout(ctx context.Context) string {
	prev := s.Snapshot()
	s.commit(s.nextTicket(), signedOut)

	if err := s.remoteSignOut(ctx); err != nil {
		s.logger.Warn("remote sign-out failed, local session cleared anyway", "error", err)
	}
	s.clearCredentials(ctx, "logout")
	// a refresh that raced the remote call must not resurrect the session
	s.commit(s.nextTicket(), signedOut)

	s.metrics.Inc(MetricLogout)
	s.emitAudit(ctx, AuditLogout, prev.Identity, prev.Role, true, nil, nil)
	return s.cfg.Gate.PublicPath
}

// Signup registers a new identity. The Session is not changed.
func (s *Store) Signup(ctx context.Context, email, password string) (Identity, error) {
	id, err := s.backend.SignUp(ctx, email, password)
	if err != nil {
		s.metrics.Inc(MetricSignupFailure)
		s.emitAudit(ctx, AuditSignupFailure, &Identity{Email: email}, "", false, err, nil)
		return Identity{}, err
	}
	s.metrics.Inc(MetricSignupSuccess)
	s.emitAudit(ctx, AuditSignupSuccess, &id, "", true, nil, nil)
	return id, nil
}

// ForceSignedOut clears every credential marker and moves the Session to
// resolved with no identity, without contacting the backend.
func (s *Store) ForceSignedOut(ctx context.Context, reason string) {
	prev := s.Snapshot()
	s.clearCredentials(ctx, reason)
	s.commit(s.nextTicket(), signedOut)
	s.metrics.Inc(MetricForcedLogout)
	s.emitAudit(ctx, AuditForcedLogout, prev.Identity, prev.Role, true, nil, map[string]string{"reason": reason})
}

// Close detaches from the backend event stream, waits for background
// re-checks and closes watchers and the audit dispatcher.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.unsubscribe
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.bg.Wait()
	s.audit.Close()
}

func (s *Store) nextTicket() uint64 {
	return s.tickets.Add(1)
}

// commit applies mutate if ticket is the newest seen and publishes the
// result. It reports whether the mutation was applied.
func (s *Store) commit(ticket uint64, mutate func(*Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket <= s.applied {
		s.metrics.Inc(MetricEventStale)
		return false
	}
	s.applied = ticket

	next := s.state
	mutate(&next)
	if next.Status == StatusResolved {
		next.ResolvingSince = time.Time{}
	}
	if sameSession(s.state, next) {
		return true
	}

	s.version++
	next.Version = s.version
	s.state = next
	s.publishLocked()
	return true
}

func (s *Store) publishLocked() {
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s.state
	}
}

func sameSession(a, b Snapshot) bool {
	if a.Status != b.Status || a.Role != b.Role {
		return false
	}
	switch {
	case a.Identity == nil && b.Identity == nil:
		return true
	case a.Identity == nil || b.Identity == nil:
		return false
	default:
		return *a.Identity == *b.Identity
	}
}

func signedOut(next *Snapshot) {
	next.Identity = nil
	next.Role = RoleUnknown
	next.Status = StatusResolved
}

func signedIn(user Identity, role Role, resolve bool) func(*Snapshot) {
	return func(next *Snapshot) {
		u := user
		next.Identity = &u
		next.Role = role
		if resolve {
			next.Status = StatusResolved
		}
	}
}

// adoptSession resolves the role for user and commits it, or forces a
// logout when the role lookup proves the credential invalid.
func (s *Store) adoptSession(ctx context.Context, ticket uint64, user Identity, resolve bool) {
	role, forced := s.resolveRole(ctx, user)
	if forced {
		s.forceLogout(ctx, ticket, "role_credential_error", ErrCredentialInvalid)
		return
	}
	s.commit(ticket, signedIn(user, role, resolve))
}

// forceLogout commits a signed-out Session under ticket and, only when that
// commit wins, clears markers and signs out remotely.
func (s *Store) forceLogout(ctx context.Context, ticket uint64, reason string, cause error) {
	prev := s.Snapshot()
	if !s.commit(ticket, signedOut) {
		return
	}
	s.clearCredentials(ctx, reason)
	if err := s.remoteSignOut(ctx); err != nil {
		s.logger.Debug("remote sign-out after forced logout failed", "error", err)
	}
	s.metrics.Inc(MetricForcedLogout)
	s.emitAudit(ctx, AuditForcedLogout, prev.Identity, prev.Role, true, cause, map[string]string{"reason": reason})
}

func (s *Store) clearCredentials(ctx context.Context, reason string) {
	n, err := ClearCredentials(ctx, s.storage, s.cfg.Storage)
	if err != nil {
		s.logger.Warn("clearing stored credentials failed", "reason", reason, "error", err)
		return
	}
	if n == 0 {
		return
	}
	s.metrics.Inc(MetricCredentialsCleared)
	s.emitAudit(ctx, AuditCredentialsCleared, nil, "", true, nil, map[string]string{
		"reason": reason,
		"keys":   strconv.Itoa(n),
	})
}

func (s *Store) remoteSignOut(ctx context.Context) error {
	_, err := boundedCall(ctx, s.cfg.Session.SignOutTimeout, func(c context.Context) (struct{}, error) {
		return struct{}{}, s.backend.SignOut(c)
	})
	return err
}

// boundedCall runs fn with a deadline and returns ErrResolveTimeout when the
// deadline passes, even if fn ignores its context.
func boundedCall[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrResolveTimeout, d)
		}
		return zero, cctx.Err()
	}
}
