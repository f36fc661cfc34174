package docportal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the full Store and Gate configuration.
//
// Config values are copied by Builder.WithConfig; later mutation of the
// caller's value has no effect on a built Store.
type Config struct {
	Session SessionConfig
	Gate    GateConfig
	Storage StorageConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds the Store's backend interactions.
type SessionConfig struct {
	// InitTimeout bounds the GetSession call made by Initialize.
	InitTimeout time.Duration
	// RecheckTimeout bounds the visibility re-check.
	RecheckTimeout time.Duration
	// RoleTimeout bounds a single role lookup.
	RoleTimeout time.Duration
	// KeepAliveInterval is the period of the background keep-alive ping.
	// Zero disables the loop.
	KeepAliveInterval time.Duration
	// SignOutTimeout bounds best-effort remote sign-out calls.
	SignOutTimeout time.Duration
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig controls route protection and navigation targets.
type GateConfig struct {
	// ResolveBudget is how long the Session may stay resolving before the
	// breaker clears credentials and forces a signed-out state. It must be at
	// least MinResolveBudget of the session timeouts so a slow but healthy
	// boot never trips it.
	ResolveBudget time.Duration
	LoginPath     string
	PublicPath    string
	AdminPath     string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig describes the credential-marker policy.
type StorageConfig struct {
	// VendorPrefix namespaces every key written by the backend client.
	VendorPrefix string
	// MarkerFragment identifies the session key among prefixed keys.
	MarkerFragment string
	// VendorFragment widens the clear policy to un-prefixed vendor keys.
	VendorFragment string
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			InitTimeout:       5 * time.Second,
			RecheckTimeout:    5 * time.Second,
			RoleTimeout:       5 * time.Second,
			KeepAliveInterval: 5 * time.Minute,
			SignOutTimeout:    3 * time.Second,
		},
		Gate: GateConfig{
			ResolveBudget: 15 * time.Second,
			LoginPath:     "/login",
			PublicPath:    "/",
			AdminPath:     "/admin",
		},
		Storage: StorageConfig{
			VendorPrefix:   "sb-",
			MarkerFragment: "auth-token",
			VendorFragment: "supabase",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// Session
	if c.Session.InitTimeout <= 0 {
		return errors.New("Session InitTimeout must be > 0")
	}
	if c.Session.RecheckTimeout <= 0 {
		return errors.New("Session RecheckTimeout must be > 0")
	}
	if c.Session.RoleTimeout <= 0 {
		return errors.New("Session RoleTimeout must be > 0")
	}
	if c.Session.KeepAliveInterval < 0 {
		return errors.New("Session KeepAliveInterval must be >= 0")
	}
	if c.Session.SignOutTimeout <= 0 {
		return errors.New("Session SignOutTimeout must be > 0")
	}

	// Gate
	if c.Gate.ResolveBudget <= 0 {
		return errors.New("Gate ResolveBudget must be > 0")
	}
	if floor := MinResolveBudget(c.Session); c.Gate.ResolveBudget < floor {
		return fmt.Errorf("Gate ResolveBudget must be >= %s (InitTimeout + RoleTimeout + 25%%)", floor)
	}
	if !strings.HasPrefix(c.Gate.LoginPath, "/") {
		return errors.New("Gate LoginPath must be an absolute path")
	}
	if !strings.HasPrefix(c.Gate.PublicPath, "/") {
		return errors.New("Gate PublicPath must be an absolute path")
	}
	if !strings.HasPrefix(c.Gate.AdminPath, "/") {
		return errors.New("Gate AdminPath must be an absolute path")
	}
	if c.Gate.LoginPath == c.Gate.AdminPath {
		return errors.New("Gate LoginPath and AdminPath must differ")
	}

	// Storage
	if c.Storage.VendorPrefix == "" {
		return errors.New("Storage VendorPrefix must be set")
	}
	if c.Storage.MarkerFragment == "" {
		return errors.New("Storage MarkerFragment must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// MinResolveBudget is the smallest breaker budget compatible with sc: the
// bounded session check plus the bounded role lookup, with a quarter on top
// for scheduling and storage access.
func MinResolveBudget(sc SessionConfig) time.Duration {
	worst := sc.InitTimeout + sc.RoleTimeout
	return worst + worst/4
}
