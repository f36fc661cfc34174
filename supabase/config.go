package supabase

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures a Client. URL and AnonKey are required.
type Config struct {
	URL     string
	AnonKey string

	// StorageKey overrides the derived sb-<project-ref>-auth-token key.
	StorageKey string
	UsersTable string

	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin   time.Duration
	AutoRefreshTick time.Duration
	RequestTimeout  time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if c.UsersTable == "" {
		c.UsersTable = "users"
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = 90 * time.Second
	}
	if c.AutoRefreshTick <= 0 {
		c.AutoRefreshTick = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.StorageKey == "" {
		c.StorageKey = "sb-" + c.ProjectRef() + "-auth-token"
	}
	return c
}

func (c Config) validate() error {
	if c.URL == "" {
		return errors.New("supabase: URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("supabase: URL must be an absolute http(s) URL")
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return errors.New("supabase: AnonKey is required")
	}
	return nil
}

// ProjectRef returns the first label of the project host, e.g. "abcd" for
// https://abcd.supabase.co.
func (c Config) ProjectRef() string {
	u, err := url.Parse(strings.TrimSpace(c.URL))
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i >= 0 {
		return host[:i]
	}
	return host
}
