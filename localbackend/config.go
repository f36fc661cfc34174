package localbackend

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/docportal/internal/rate"
	"github.com/MrEthical07/docportal/password"
)

// DefaultStorageKey matches the hosted layout for a project named "local".
const DefaultStorageKey = "sb-local-auth-token"

type Config struct {
	// Prefix namespaces every Redis key the backend writes.
	Prefix     string
	StorageKey string

	// JWTSecret signs access tokens. At least 32 bytes.
	JWTSecret  []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RefreshMargin is how long before expiry a session is refreshed.
	RefreshMargin   time.Duration
	AutoRefreshTick time.Duration

	Password password.Config
	Rate     rate.Config
	Logger   *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		Prefix:          "docportal:lb",
		StorageKey:      DefaultStorageKey,
		Issuer:          "docportal-local",
		AccessTTL:       time.Hour,
		RefreshTTL:      30 * 24 * time.Hour,
		RefreshMargin:   90 * time.Second,
		AutoRefreshTick: 30 * time.Second,
		Password:        password.DefaultConfig(),
		Rate:            rate.DefaultConfig(),
	}
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("localbackend: JWTSecret must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("localbackend: token lifetimes must be positive")
	}
	if c.RefreshTTL < c.AccessTTL {
		return errors.New("localbackend: RefreshTTL must not be shorter than AccessTTL")
	}
	if c.RefreshMargin < 0 || c.RefreshMargin >= c.AccessTTL {
		return errors.New("localbackend: RefreshMargin must be within AccessTTL")
	}
	return nil
}
