package docportal

import (
	"context"
	"time"
)

// HandleAuthEvent applies a backend auth-state notification. Build wires it
// to Backend.Subscribe.
//
// Events that arrive before Initialize has committed are deferred; only the
// latest one is kept and it is replayed once initialization finishes.
func (s *Store) HandleAuthEvent(ctx context.Context, ev AuthEvent) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.phase != phaseDone {
		held := ev
		s.deferred = &held
		s.mu.Unlock()
		s.metrics.Inc(MetricEventDeferred)
		return
	}
	ticket := s.nextTicket()
	s.mu.Unlock()

	s.applyEvent(ctx, ev, ticket)
}

// applyEvent commits ev under ticket. The ticket must have been taken while
// holding s.mu so that arrival order matches ticket order.
func (s *Store) applyEvent(ctx context.Context, ev AuthEvent, ticket uint64) {
	s.metrics.Inc(MetricEventApplied)
	s.logger.Debug("auth event", "event", ev.Kind.String(), "has_session", ev.Session != nil)

	if ev.Err != nil {
		if IsCredentialError(ev.Err) {
			s.forceLogout(ctx, ticket, "event_credential_error", ev.Err)
			return
		}
		s.logger.Warn("auth event carried an error", "event", ev.Kind.String(), "error", ev.Err)
		if ev.Session == nil {
			return
		}
	}

	switch {
	case ev.Kind == EventSignedOut:
		prev := s.Snapshot()
		if s.commit(ticket, signedOut) {
			s.clearCredentials(ctx, "signed_out_event")
			if prev.Identity != nil {
				s.emitAudit(ctx, AuditLogout, prev.Identity, prev.Role, true, nil, map[string]string{"source": "backend"})
			}
		}
	case ev.Session == nil:
		s.commit(ticket, func(next *Snapshot) {
			next.Identity = nil
			next.Role = RoleUnknown
			next.Status = StatusResolved
		})
	case ev.Kind == EventTokenRefreshed:
		s.adoptSession(ctx, ticket, ev.Session.User, false)
	default:
		s.adoptSession(ctx, ticket, ev.Session.User, true)
	}
}

// Recheck re-validates an authenticated Session, typically when the UI
// becomes visible again. Only definitive outcomes change the Session: a
// credential error or expired session logs out, a valid session refreshes
// the role. Timeouts and other failures keep the current state.
func (s *Store) Recheck(ctx context.Context) {
	s.mu.Lock()
	ready := s.phase == phaseDone && !s.closed
	authed := s.state.IsAuthenticated()
	s.mu.Unlock()
	if !ready || !authed {
		return
	}
	if !s.rechecking.CompareAndSwap(false, true) {
		return
	}
	defer s.rechecking.Store(false)

	s.metrics.Inc(MetricRecheck)
	ticket := s.nextTicket()

	sess, err := boundedCall(ctx, s.cfg.Session.RecheckTimeout, s.backend.GetSession)
	switch {
	case IsCredentialError(err):
		s.forceLogout(ctx, ticket, "recheck_credential_error", err)
	case err != nil:
		s.logger.Debug("recheck inconclusive", "error", err)
	case sess == nil:
		s.logger.Debug("recheck found no session, keeping state")
	case sess.Expired(s.now()):
		s.forceLogout(ctx, ticket, "recheck_session_expired", ErrSessionExpired)
	default:
		s.adoptSession(ctx, ticket, sess.User, false)
	}
}

// RecheckAsync runs Recheck in the background and returns immediately. The
// re-check outlives ctx cancellation but not Store.Close.
func (s *Store) RecheckAsync(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		s.Recheck(context.WithoutCancel(ctx))
	}()
}

// Run pings the backend every Session.KeepAliveInterval while authenticated
// so the backend client keeps its tokens warm. It never mutates the Session
// and returns when ctx is done.
func (s *Store) Run(ctx context.Context) error {
	interval := s.cfg.Session.KeepAliveInterval
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.keepAlive(ctx)
		}
	}
}

func (s *Store) keepAlive(ctx context.Context) {
	if !s.Snapshot().IsAuthenticated() {
		return
	}
	if _, err := boundedCall(ctx, s.cfg.Session.RecheckTimeout, s.backend.GetSession); err != nil {
		s.metrics.Inc(MetricKeepAliveFailure)
		s.logger.Warn("keep-alive ping failed", "error", err)
	}
}
