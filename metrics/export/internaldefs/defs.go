package internaldefs

import (
	"github.com/MrEthical07/docportal"
)

type CounterDef struct {
	ID   docportal.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   docportal.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: docportal.MetricInitResolved, Name: "docportal_init_resolved_total", Help: "Session initializations that reached a resolved state."},
	{ID: docportal.MetricInitNoMarker, Name: "docportal_init_no_marker_total", Help: "Initializations resolved without a backend call because no credential marker was stored."},
	{ID: docportal.MetricInitInconclusive, Name: "docportal_init_inconclusive_total", Help: "Initializations whose backend check timed out or failed without a credential error."},
	{ID: docportal.MetricLoginSuccess, Name: "docportal_login_success_total", Help: "Successful logins."},
	{ID: docportal.MetricLoginFailure, Name: "docportal_login_failure_total", Help: "Failed logins."},
	{ID: docportal.MetricLogout, Name: "docportal_logout_total", Help: "Logouts."},
	{ID: docportal.MetricSignupSuccess, Name: "docportal_signup_success_total", Help: "Successful sign-ups."},
	{ID: docportal.MetricSignupFailure, Name: "docportal_signup_failure_total", Help: "Rejected sign-ups."},
	{ID: docportal.MetricForcedLogout, Name: "docportal_forced_logout_total", Help: "Sign-outs forced by credential errors or the gate breaker."},
	{ID: docportal.MetricCredentialsCleared, Name: "docportal_credentials_cleared_total", Help: "Credential marker clear operations."},
	{ID: docportal.MetricRoleFallback, Name: "docportal_role_fallback_total", Help: "Role resolutions that fell back to the default or last known role."},
	{ID: docportal.MetricRoleRecordInserted, Name: "docportal_role_record_inserted_total", Help: "User records created on first role lookup."},
	{ID: docportal.MetricEventApplied, Name: "docportal_auth_event_applied_total", Help: "Backend auth events applied to the session."},
	{ID: docportal.MetricEventDeferred, Name: "docportal_auth_event_deferred_total", Help: "Backend auth events deferred until initialization finished."},
	{ID: docportal.MetricEventStale, Name: "docportal_auth_event_stale_total", Help: "Session commits discarded because a newer operation won."},
	{ID: docportal.MetricRecheck, Name: "docportal_recheck_total", Help: "Session re-checks on resume."},
	{ID: docportal.MetricKeepAliveFailure, Name: "docportal_keepalive_failure_total", Help: "Failed keep-alive session checks."},
	{ID: docportal.MetricGateRender, Name: "docportal_gate_render_total", Help: "Gate verdicts that admitted the request."},
	{ID: docportal.MetricGateLoading, Name: "docportal_gate_loading_total", Help: "Gate verdicts while the session was resolving."},
	{ID: docportal.MetricGateRedirect, Name: "docportal_gate_redirect_total", Help: "Gate verdicts that redirected."},
	{ID: docportal.MetricGateBreakerTripped, Name: "docportal_gate_breaker_tripped_total", Help: "Times the gate breaker forced a sign-out."},
}

var HistogramDefs = []HistogramDef{
	{ID: docportal.MetricResolveLatency, Name: "docportal_resolve_latency_seconds", Help: "Time from initialization start to a resolved session."},
}

// HistogramBounds are the upper bounds of the fixed latency buckets, in
// seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters without labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// AuditDroppedName is the counter for audit events dropped under
// backpressure.
const AuditDroppedName = "docportal_audit_dropped_total"

// Session state gauges, exported when the source can report a snapshot.
const (
	SessionAuthenticatedName = "docportal_session_authenticated"
	SessionResolvingName     = "docportal_session_resolving"
	SessionAdminName         = "docportal_session_admin"
)

// NormalizeBuckets copies raw into the fixed bucket layout, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// SessionGauges returns the 0/1 values of the session state gauges.
func SessionGauges(s docportal.Snapshot) (authenticated, resolving, admin uint64) {
	if s.IsAuthenticated() {
		authenticated = 1
	}
	if s.Resolving() {
		resolving = 1
	}
	if s.IsAdmin() {
		admin = 1
	}
	return authenticated, resolving, admin
}
