package bootstrap

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", "")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := DefaultConfig()
	if cfg.HTTPAddr != "127.0.0.1:8080" || cfg.AllowRemote {
		t.Fatalf("default bind must be loopback only, got %q allow_remote=%v", cfg.HTTPAddr, cfg.AllowRemote)
	}
	if cfg.HTTPAddr != want.HTTPAddr || cfg.Backend != BackendLocal || cfg.ResolveBudget != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	file := writeFile(t, "docportal.yaml", `
server:
  addr: ":9000"
  allow_remote: true
  allowed_origins: ["http://portal.example"]
log:
  level: warn
  format: text
backend:
  kind: local
  catalog_prefix: "test:catalog"
local:
  admin_email: admin@example.com
  admin_password: from-file
session:
  init_timeout: 2s
  resolve_budget: 15s
audit:
  log: true
`)
	envFile := writeFile(t, ".env", "DOCPORTAL_LOG_LEVEL=debug\nDOCPORTAL_ADMIN_PASSWORD=from-dotenv\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("DOCPORTAL_LOG_LEVEL")
		_ = os.Unsetenv("DOCPORTAL_ADMIN_PASSWORD")
	})
	t.Setenv("DOCPORTAL_HTTP_ADDR", "127.0.0.1:9100")

	cfg, err := LoadConfig(file, envFile)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9100" {
		t.Fatalf("environment should win over the file, got %q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" || cfg.AdminPassword != "from-dotenv" {
		t.Fatalf(".env should win over the file, got level=%q password=%q", cfg.LogLevel, cfg.AdminPassword)
	}
	if cfg.LogFormat != "text" || cfg.CatalogPrefix != "test:catalog" || cfg.AdminEmail != "admin@example.com" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.InitTimeout != 2*time.Second || cfg.ResolveBudget != 15*time.Second {
		t.Fatalf("durations not applied: %v %v", cfg.InitTimeout, cfg.ResolveBudget)
	}
	if !cfg.AllowRemote {
		t.Fatal("allow_remote from the file not applied")
	}
	if !cfg.AuditLog || len(cfg.AllowedOrigins) != 1 {
		t.Fatalf("audit or origins not applied: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected error for a missing config file")
	}
	bad := writeFile(t, "bad.yaml", "server: [")
	if _, err := LoadConfig(bad, ""); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
	if _, err := LoadConfig("", filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("a missing .env file is optional: %v", err)
	}

	t.Setenv("DOCPORTAL_BACKEND", "ldap")
	if _, err := LoadConfig("", ""); err == nil || !strings.Contains(err.Error(), "ldap") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }, false},
		{"admin email without password", func(c *Config) { c.AdminEmail = "a@example.com" }, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, false},
		{"zero resolve budget", func(c *Config) { c.ResolveBudget = 0 }, false},
		{"resolve budget used up by init and role timeouts", func(c *Config) { c.ResolveBudget = 10 * time.Second }, false},
		{"longer init timeout needs a longer budget", func(c *Config) { c.InitTimeout = 20 * time.Second }, false},
		{"all interfaces", func(c *Config) { c.HTTPAddr = ":8080" }, false},
		{"public address", func(c *Config) { c.HTTPAddr = "10.0.0.5:8080" }, false},
		{"all interfaces with allow_remote", func(c *Config) {
			c.HTTPAddr = "0.0.0.0:8080"
			c.AllowRemote = true
		}, true},
		{"ipv6 loopback", func(c *Config) { c.HTTPAddr = "[::1]:8080" }, true},
		{"localhost", func(c *Config) { c.HTTPAddr = "localhost:8080" }, true},
		{"address without port", func(c *Config) { c.HTTPAddr = "127.0.0.1" }, false},
		{"supabase without url", func(c *Config) { c.Backend = BackendSupabase }, false},
		{"supabase complete", func(c *Config) {
			c.Backend = BackendSupabase
			c.SupabaseURL = "https://abcd.supabase.co"
			c.SupabaseAnonKey = "anon"
		}, true},
		{"supabase unknown credential store", func(c *Config) {
			c.Backend = BackendSupabase
			c.SupabaseURL = "https://abcd.supabase.co"
			c.SupabaseAnonKey = "anon"
			c.Credentials = "cookie"
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.AdminPassword = "hunter22"

	out := cfg.Redacted()
	if out.JWTSecret != "[redacted]" || out.AdminPassword != "[redacted]" || out.SupabaseAnonKey != "" {
		t.Fatalf("unexpected redaction: %+v", out)
	}
	if cfg.JWTSecret == "[redacted]" {
		t.Fatal("Redacted must not modify the receiver")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogLevel = "warn"

	logger, err := NewLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"service":"docportal"`) {
		t.Fatalf("unexpected log output: %s", out)
	}

	cfg.LogFormat = "xml"
	if _, err := NewLogger(cfg, &buf); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
