package docportal

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.InitTimeout != 5*time.Second {
		t.Fatalf("expected 5s init timeout, got %s", cfg.Session.InitTimeout)
	}
	if cfg.Gate.ResolveBudget != 15*time.Second {
		t.Fatalf("expected 15s resolve budget, got %s", cfg.Gate.ResolveBudget)
	}
	if cfg.Session.KeepAliveInterval != 5*time.Minute {
		t.Fatalf("expected 5m keep-alive, got %s", cfg.Session.KeepAliveInterval)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "keep-alive disabled",
			mutate:    func(c *Config) { c.Session.KeepAliveInterval = 0 },
			wantValid: true,
		},
		{
			name:      "init timeout zero",
			mutate:    func(c *Config) { c.Session.InitTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "keep-alive negative",
			mutate:    func(c *Config) { c.Session.KeepAliveInterval = -time.Second },
			wantValid: false,
		},
		{
			name: "budget below init timeout",
			mutate: func(c *Config) {
				c.Session.InitTimeout = 10 * time.Second
				c.Gate.ResolveBudget = 5 * time.Second
			},
			wantValid: false,
		},
		{
			name: "budget consumed by init and role timeouts",
			mutate: func(c *Config) {
				c.Session.InitTimeout = 200 * time.Millisecond
				c.Session.RoleTimeout = 200 * time.Millisecond
				c.Gate.ResolveBudget = 300 * time.Millisecond
			},
			wantValid: false,
		},
		{
			name: "budget with headroom over init and role timeouts",
			mutate: func(c *Config) {
				c.Session.InitTimeout = 200 * time.Millisecond
				c.Session.RoleTimeout = 200 * time.Millisecond
				c.Gate.ResolveBudget = 500 * time.Millisecond
			},
			wantValid: true,
		},
		{
			name:      "relative login path",
			mutate:    func(c *Config) { c.Gate.LoginPath = "login" },
			wantValid: false,
		},
		{
			name:      "login equals admin",
			mutate:    func(c *Config) { c.Gate.AdminPath = c.Gate.LoginPath },
			wantValid: false,
		},
		{
			name:      "empty vendor prefix",
			mutate:    func(c *Config) { c.Storage.VendorPrefix = "" },
			wantValid: false,
		},
		{
			name:      "empty vendor fragment allowed",
			mutate:    func(c *Config) { c.Storage.VendorFragment = "" },
			wantValid: true,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	if _, err := New().WithStorage(newMapStorage()).Build(); err == nil {
		t.Fatal("expected error without backend")
	}
	if _, err := New().WithBackend(newFakeBackend()).Build(); err == nil {
		t.Fatal("expected error without storage")
	}

	b := New().WithBackend(newFakeBackend()).WithStorage(newMapStorage())
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer s.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}
	if s.Snapshot().Status != StatusResolving {
		t.Fatal("a fresh store must be resolving")
	}
}

func TestMarkerPolicy(t *testing.T) {
	cfg := DefaultConfig().Storage
	tests := []struct {
		keys    []string
		present bool
		cleared int
	}{
		{keys: nil, present: false, cleared: 0},
		{keys: []string{"theme"}, present: false, cleared: 0},
		{keys: []string{"sb-proj-auth-token"}, present: true, cleared: 1},
		{keys: []string{"sb-proj-code-verifier"}, present: false, cleared: 1},
		{keys: []string{"auth-token"}, present: false, cleared: 0},
		{keys: []string{"supabase.auth.token", "theme", "sb-x-auth-token"}, present: true, cleared: 2},
	}
	for _, tt := range tests {
		if got := HasCredentialMarker(tt.keys, cfg); got != tt.present {
			t.Fatalf("HasCredentialMarker(%v)=%v, want %v", tt.keys, got, tt.present)
		}
		if got := len(MarkerKeys(tt.keys, cfg)); got != tt.cleared {
			t.Fatalf("MarkerKeys(%v) cleared %d, want %d", tt.keys, got, tt.cleared)
		}
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"admin":  RoleAdmin,
		" User ": RoleUser,
		"":       RoleUnknown,
		"owner":  RoleUnknown,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q)=%s, want %s", in, got, want)
		}
	}
}
