package docportal

import "context"

// Audit event types emitted by the Store and Gate.
const (
	AuditLoginSuccess       = "login_success"
	AuditLoginFailure       = "login_failure"
	AuditLogout             = "logout"
	AuditSignupSuccess      = "signup_success"
	AuditSignupFailure      = "signup_failure"
	AuditCredentialsCleared = "credentials_cleared"
	AuditForcedLogout       = "forced_logout"
	AuditRoleFallback       = "role_fallback"
	AuditBreakerTripped     = "gate_breaker_tripped"
)

func (s *Store) emitAudit(ctx context.Context, eventType string, id *Identity, role Role, success bool, err error, meta map[string]string) {
	if s.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: s.now().UTC(),
		EventType: eventType,
		Success:   success,
		Metadata:  meta,
	}
	if id != nil {
		ev.UserID = id.ID
		ev.Email = id.Email
	}
	if role != "" && role != RoleUnknown {
		ev.Role = string(role)
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		withID := make(map[string]string, len(meta)+1)
		for k, v := range meta {
			withID[k] = v
		}
		withID["request_id"] = rid
		ev.Metadata = withID
	}
	s.audit.Emit(ctx, ev)
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (s *Store) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a copy of the Store's counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}
