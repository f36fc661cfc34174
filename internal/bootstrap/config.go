package bootstrap

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/docportal"
)

// Backend kinds.
const (
	BackendLocal    = "local"
	BackendSupabase = "supabase"
)

// Credential store kinds for the hosted backend.
const (
	CredentialsFile   = "file"
	CredentialsRedis  = "redis"
	CredentialsMemory = "memory"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "DOCPORTAL_"

// Config is the resolved runtime configuration of the portal binary.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowRemote permits binding HTTPAddr to a non-loopback interface. The
	// process holds a single Session, so every peer that can reach the
	// listener acts as the signed-in operator.
	AllowRemote     bool          `yaml:"allow_remote"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Backend       string `yaml:"backend"`
	// RedisURL is a redis:// URL or host:port. Empty starts an embedded
	// in-memory Redis, which only suits local development.
	RedisURL      string `yaml:"redis_url"`
	CatalogPrefix string `yaml:"catalog_prefix"`

	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	Credentials     string `yaml:"credentials"`
	CredentialsFile string `yaml:"credentials_file"`

	JWTSecret     string `yaml:"jwt_secret"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`

	InitTimeout       time.Duration `yaml:"init_timeout"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	ResolveBudget     time.Duration `yaml:"resolve_budget"`
	AuditLog          bool          `yaml:"audit_log"`
}

// configFile mirrors the YAML schema of the config file.
type configFile struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowRemote     *bool         `yaml:"allow_remote"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Backend struct {
		Kind          string `yaml:"kind"`
		RedisURL      string `yaml:"redis_url"`
		CatalogPrefix string `yaml:"catalog_prefix"`
	} `yaml:"backend"`
	Supabase struct {
		URL             string `yaml:"url"`
		AnonKey         string `yaml:"anon_key"`
		Credentials     string `yaml:"credentials"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"supabase"`
	Local struct {
		JWTSecret     string `yaml:"jwt_secret"`
		AdminEmail    string `yaml:"admin_email"`
		AdminPassword string `yaml:"admin_password"`
	} `yaml:"local"`
	Session struct {
		InitTimeout       time.Duration `yaml:"init_timeout"`
		KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
		ResolveBudget     time.Duration `yaml:"resolve_budget"`
	} `yaml:"session"`
	Audit struct {
		Log *bool `yaml:"log"`
	} `yaml:"audit"`
}

// DefaultConfig returns the settings used when neither a file nor the
// environment says otherwise.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:          "127.0.0.1:8080",
		ShutdownTimeout:   10 * time.Second,
		LogLevel:          "info",
		LogFormat:         "json",
		Backend:           BackendLocal,
		CatalogPrefix:     "docportal:catalog",
		Credentials:       CredentialsFile,
		CredentialsFile:   ".docportal/credentials.json",
		InitTimeout:       5 * time.Second,
		KeepAliveInterval: 5 * time.Minute,
		ResolveBudget:     15 * time.Second,
	}
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path, then the environment. envFile, when present, is loaded
// into the environment first without overriding variables that are already
// set. Empty path or envFile skips that layer.
func LoadConfig(path, envFile string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		var f configFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		f.apply(&cfg)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (f configFile) apply(cfg *Config) {
	setString(&cfg.HTTPAddr, f.Server.Addr)
	if len(f.Server.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = f.Server.AllowedOrigins
	}
	setDuration(&cfg.ShutdownTimeout, f.Server.ShutdownTimeout)
	if f.Server.AllowRemote != nil {
		cfg.AllowRemote = *f.Server.AllowRemote
	}

	setString(&cfg.LogLevel, f.Log.Level)
	setString(&cfg.LogFormat, f.Log.Format)

	setString(&cfg.Backend, f.Backend.Kind)
	setString(&cfg.RedisURL, f.Backend.RedisURL)
	setString(&cfg.CatalogPrefix, f.Backend.CatalogPrefix)

	setString(&cfg.SupabaseURL, f.Supabase.URL)
	setString(&cfg.SupabaseAnonKey, f.Supabase.AnonKey)
	setString(&cfg.Credentials, f.Supabase.Credentials)
	setString(&cfg.CredentialsFile, f.Supabase.CredentialsFile)

	setString(&cfg.JWTSecret, f.Local.JWTSecret)
	setString(&cfg.AdminEmail, f.Local.AdminEmail)
	setString(&cfg.AdminPassword, f.Local.AdminPassword)

	setDuration(&cfg.InitTimeout, f.Session.InitTimeout)
	setDuration(&cfg.KeepAliveInterval, f.Session.KeepAliveInterval)
	setDuration(&cfg.ResolveBudget, f.Session.ResolveBudget)
	if f.Audit.Log != nil {
		cfg.AuditLog = *f.Audit.Log
	}
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = envOrDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AllowedOrigins = envCSV("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.ShutdownTimeout = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.AllowRemote = envBool("ALLOW_REMOTE", cfg.AllowRemote)

	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))

	cfg.Backend = strings.ToLower(strings.TrimSpace(envOrDefault("BACKEND", cfg.Backend)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.CatalogPrefix = envOrDefault("CATALOG_PREFIX", cfg.CatalogPrefix)

	cfg.SupabaseURL = envOrDefault("SUPABASE_URL", cfg.SupabaseURL)
	cfg.SupabaseAnonKey = envOrDefault("SUPABASE_ANON_KEY", cfg.SupabaseAnonKey)
	cfg.Credentials = strings.ToLower(envOrDefault("CREDENTIALS", cfg.Credentials))
	cfg.CredentialsFile = envOrDefault("CREDENTIALS_FILE", cfg.CredentialsFile)

	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.AdminEmail = envOrDefault("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.AdminPassword = envOrDefault("ADMIN_PASSWORD", cfg.AdminPassword)

	cfg.InitTimeout = envDuration("INIT_TIMEOUT", cfg.InitTimeout)
	cfg.KeepAliveInterval = envDuration("KEEP_ALIVE_INTERVAL", cfg.KeepAliveInterval)
	cfg.ResolveBudget = envDuration("RESOLVE_BUDGET", cfg.ResolveBudget)
	cfg.AuditLog = envBool("AUDIT_LOG", cfg.AuditLog)
}

// Validate reports the first setting that cannot start the portal.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}
	host, _, err := net.SplitHostPort(c.HTTPAddr)
	if err != nil {
		return fmt.Errorf("invalid http address %q: %w", c.HTTPAddr, err)
	}
	if !c.AllowRemote && !isLoopback(host) {
		return fmt.Errorf("http address %q is reachable from the network; bind to a loopback address or set allow_remote", c.HTTPAddr)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.InitTimeout <= 0 || c.ResolveBudget <= 0 {
		return errors.New("init timeout and resolve budget must be positive")
	}
	if c.KeepAliveInterval < 0 {
		return errors.New("keep-alive interval must not be negative")
	}
	if floor := docportal.MinResolveBudget(c.sessionConfig()); c.ResolveBudget < floor {
		return fmt.Errorf("resolve budget must be at least %s for init timeout %s", floor, c.InitTimeout)
	}

	switch c.Backend {
	case BackendLocal:
		if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
			return errors.New("jwt secret must be at least 32 bytes")
		}
		if (c.AdminEmail == "") != (c.AdminPassword == "") {
			return errors.New("admin email and admin password must be set together")
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("supabase backend needs SUPABASE_URL and SUPABASE_ANON_KEY")
		}
		switch c.Credentials {
		case CredentialsFile:
			if c.CredentialsFile == "" {
				return errors.New("credentials file path is required")
			}
		case CredentialsRedis, CredentialsMemory:
		default:
			return fmt.Errorf("unknown credential store %q", c.Credentials)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// sessionConfig maps the portal settings onto the Store's session timeouts.
func (c Config) sessionConfig() docportal.SessionConfig {
	sc := docportal.DefaultConfig().Session
	sc.InitTimeout = c.InitTimeout
	sc.KeepAliveInterval = c.KeepAliveInterval
	return sc
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	for _, s := range []*string{&out.SupabaseAnonKey, &out.JWTSecret, &out.AdminPassword} {
		if *s != "" {
			*s = "[redacted]"
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(EnvPrefix + name); value != "" {
		return value
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envCSV parses a comma-separated list and drops empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(EnvPrefix + name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
