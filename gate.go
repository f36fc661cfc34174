package docportal

import (
	"context"
	"sync/atomic"
	"time"
)

// Decision is the Route Gate verdict for one navigation.
type Decision uint8

const (
	// DecisionLoading means the Session is still resolving; show a neutral
	// indicator and neither render nor redirect.
	DecisionLoading Decision = iota
	// DecisionRedirectLogin sends an unauthenticated caller to the login entry.
	DecisionRedirectLogin
	// DecisionRedirectPublic sends an authenticated but unauthorized caller to
	// the public entry.
	DecisionRedirectPublic
	// DecisionRender allows the protected content.
	DecisionRender
)

func (d Decision) String() string {
	switch d {
	case DecisionLoading:
		return "loading"
	case DecisionRedirectLogin:
		return "redirect_login"
	case DecisionRedirectPublic:
		return "redirect_public"
	case DecisionRender:
		return "render"
	default:
		return "invalid"
	}
}

// Decide is the pure route-protection function.
func Decide(s Snapshot, requireAdmin bool) Decision {
	if s.Status != StatusResolved {
		return DecisionLoading
	}
	if s.Identity == nil {
		return DecisionRedirectLogin
	}
	if requireAdmin && s.Role != RoleAdmin {
		return DecisionRedirectPublic
	}
	return DecisionRender
}

// Verdict is a Decision together with its navigation target.
type Verdict struct {
	Decision Decision
	Snapshot Snapshot
	// Location is the redirect target; empty unless Decision redirects.
	Location string
	// Hard marks a breaker-forced redirect that must replace the current
	// navigation entry.
	Hard bool
}

// Gate consults the Store on every protected navigation and enforces the
// resolve budget.
type Gate struct {
	store   *Store
	cfg     GateConfig
	firing  atomic.Bool
	tripped atomic.Uint64
}

// NewGate binds a Gate to store using the store's Gate configuration.
func NewGate(store *Store) *Gate {
	return &Gate{store: store, cfg: store.cfg.Gate}
}

// Admit evaluates the current Session. When the Session has been resolving
// longer than ResolveBudget the breaker trips: markers are cleared, the Store
// is forced signed-out and a hard redirect to login is returned.
func (g *Gate) Admit(ctx context.Context, requireAdmin bool) Verdict {
	snap := g.store.Snapshot()
	if g.overBudget(snap) {
		g.trip(ctx, snap)
		return Verdict{
			Decision: DecisionRedirectLogin,
			Snapshot: g.store.Snapshot(),
			Location: g.cfg.LoginPath,
			Hard:     true,
		}
	}

	v := Verdict{Decision: Decide(snap, requireAdmin), Snapshot: snap}
	switch v.Decision {
	case DecisionLoading:
		g.store.metrics.Inc(MetricGateLoading)
	case DecisionRedirectLogin:
		v.Location = g.cfg.LoginPath
		g.store.metrics.Inc(MetricGateRedirect)
	case DecisionRedirectPublic:
		v.Location = g.cfg.PublicPath
		g.store.metrics.Inc(MetricGateRedirect)
	case DecisionRender:
		g.store.metrics.Inc(MetricGateRender)
	}
	return v
}

// Watchdog trips the breaker without a navigation so that a UI waiting on
// the Store never spins forever. It returns when ctx is done or the Session
// has resolved.
func (g *Gate) Watchdog(ctx context.Context) {
	ch, cancel := g.store.Watch()
	defer cancel()

	timer := time.NewTimer(g.cfg.ResolveBudget)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok || !snap.Resolving() {
				return
			}
		case <-timer.C:
			snap := g.store.Snapshot()
			if !snap.Resolving() {
				return
			}
			if g.overBudget(snap) {
				g.trip(ctx, snap)
				return
			}
			timer.Reset(g.remaining(snap))
		}
	}
}

// Tripped returns how many times the breaker fired.
func (g *Gate) Tripped() uint64 {
	return g.tripped.Load()
}

func (g *Gate) overBudget(s Snapshot) bool {
	if !s.Resolving() || s.ResolvingSince.IsZero() {
		return false
	}
	return g.store.now().Sub(s.ResolvingSince) > g.cfg.ResolveBudget
}

// remaining is the time left before snap runs over budget, clamped so the
// watchdog neither spins nor sleeps past a restamped start.
func (g *Gate) remaining(snap Snapshot) time.Duration {
	if snap.ResolvingSince.IsZero() {
		return g.cfg.ResolveBudget
	}
	left := g.cfg.ResolveBudget - g.store.now().Sub(snap.ResolvingSince) + time.Millisecond
	switch {
	case left < 10*time.Millisecond:
		return 10 * time.Millisecond
	case left > g.cfg.ResolveBudget:
		return g.cfg.ResolveBudget
	}
	return left
}

func (g *Gate) trip(ctx context.Context, s Snapshot) {
	if !g.firing.CompareAndSwap(false, true) {
		return
	}
	defer g.firing.Store(false)
	if !g.store.Snapshot().Resolving() {
		return
	}
	g.tripped.Add(1)
	g.store.metrics.Inc(MetricGateBreakerTripped)
	g.store.logger.Error("session resolution exceeded budget, forcing sign-out",
		"budget", g.cfg.ResolveBudget,
		"resolving_since", s.ResolvingSince,
	)
	g.store.emitAudit(ctx, AuditBreakerTripped, s.Identity, s.Role, false, ErrResolveTimeout, nil)
	g.store.ForceSignedOut(ctx, "gate_breaker")
}
