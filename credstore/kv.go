package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("credstore: key not found")

// ErrUnavailable wraps failures of the underlying medium.
var ErrUnavailable = errors.New("credstore: storage unavailable")

// KV is the full credential storage contract.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}
