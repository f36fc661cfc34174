package docportal

import (
	"io"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/docportal/internal/audit"
	internalmetrics "github.com/MrEthical07/docportal/internal/metrics"
)

// Identity is an opaque reference to an identity issued by the backend.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Role is the privilege level derived from the backend user record.
type Role string

const (
	// RoleAdmin grants access to privileged views.
	RoleAdmin Role = "admin"
	// RoleUser is the default role for every identity.
	RoleUser Role = "user"
	// RoleUnknown marks a stored role string this package does not recognise.
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored role string onto a known Role. Anything other than
// admin or user yields RoleUnknown.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleUser:
		return RoleUser
	default:
		return RoleUnknown
	}
}

// IsAdmin reports whether r grants privileged views.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// Status tags the resolution state of the Session.
type Status uint8

const (
	// StatusResolving means the Session has not settled yet.
	StatusResolving Status = iota
	// StatusResolved means Identity and Role reflect the last observed backend state.
	StatusResolved
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusResolving:
		return "resolving"
	case StatusResolved:
		return "resolved"
	default:
		return "invalid"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only copy of the Session.
//
// Snapshot values are never mutated after being handed out; the Store
// publishes a new value on every commit.
type Snapshot struct {
	Identity       *Identity `json:"identity"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	Version        uint64    `json:"version"`
	ResolvingSince time.Time `json:"-"`
}

// IsAuthenticated reports whether an identity is present and the Session has
// settled.
func (s Snapshot) IsAuthenticated() bool {
	return s.Identity != nil && s.Status == StatusResolved
}

// IsAdmin reports whether the Session is authenticated with the admin role.
func (s Snapshot) IsAdmin() bool {
	return s.IsAuthenticated() && s.Role.IsAdmin()
}

// Resolving reports whether the Session is still settling.
func (s Snapshot) Resolving() bool { return s.Status == StatusResolving }

// LoginResult is returned by a successful Store.Login.
type LoginResult struct {
	Snapshot    Snapshot
	Destination string
}

// AuditEvent is the audit record emitted by the Store and Gate.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events on a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink forwards audit events to a structured logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a sink logging every audit event through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

// MetricID identifies a portal counter or histogram.
type MetricID = internalmetrics.MetricID

const (
	MetricInitResolved       = MetricID(internalmetrics.MetricInitResolved)
	MetricInitNoMarker       = MetricID(internalmetrics.MetricInitNoMarker)
	MetricInitInconclusive   = MetricID(internalmetrics.MetricInitInconclusive)
	MetricLoginSuccess       = MetricID(internalmetrics.MetricLoginSuccess)
	MetricLoginFailure       = MetricID(internalmetrics.MetricLoginFailure)
	MetricLogout             = MetricID(internalmetrics.MetricLogout)
	MetricSignupSuccess      = MetricID(internalmetrics.MetricSignupSuccess)
	MetricSignupFailure      = MetricID(internalmetrics.MetricSignupFailure)
	MetricForcedLogout       = MetricID(internalmetrics.MetricForcedLogout)
	MetricCredentialsCleared = MetricID(internalmetrics.MetricCredentialsCleared)
	MetricRoleFallback       = MetricID(internalmetrics.MetricRoleFallback)
	MetricRoleRecordInserted = MetricID(internalmetrics.MetricRoleRecordInserted)
	MetricEventApplied       = MetricID(internalmetrics.MetricEventApplied)
	MetricEventDeferred      = MetricID(internalmetrics.MetricEventDeferred)
	MetricEventStale         = MetricID(internalmetrics.MetricEventStale)
	MetricRecheck            = MetricID(internalmetrics.MetricRecheck)
	MetricKeepAliveFailure   = MetricID(internalmetrics.MetricKeepAliveFailure)
	MetricGateRender         = MetricID(internalmetrics.MetricGateRender)
	MetricGateLoading        = MetricID(internalmetrics.MetricGateLoading)
	MetricGateRedirect       = MetricID(internalmetrics.MetricGateRedirect)
	MetricGateBreakerTripped = MetricID(internalmetrics.MetricGateBreakerTripped)
	MetricResolveLatency     = MetricID(internalmetrics.MetricResolveLatency)
)
