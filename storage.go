package docportal

import (
	"context"
	"strings"
)

// CredentialStorage is the view of persisted credentials the Store needs:
// enumerate keys and delete them. Backend clients own the layout.
type CredentialStorage interface {
	Keys(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
}

// HasCredentialMarker reports whether any key carries the vendor prefix and
// the marker fragment.
func HasCredentialMarker(keys []string, cfg StorageConfig) bool {
	for _, k := range keys {
		if strings.HasPrefix(k, cfg.VendorPrefix) && strings.Contains(k, cfg.MarkerFragment) {
			return true
		}
	}
	return false
}

// MarkerKeys returns every key the clear policy removes: vendor-prefixed keys
// and keys mentioning the vendor fragment.
func MarkerKeys(keys []string, cfg StorageConfig) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, cfg.VendorPrefix) ||
			(cfg.VendorFragment != "" && strings.Contains(k, cfg.VendorFragment)) {
			out = append(out, k)
		}
	}
	return out
}

// ClearCredentials deletes every marker key from storage and returns the
// number of keys removed.
func ClearCredentials(ctx context.Context, storage CredentialStorage, cfg StorageConfig) (int, error) {
	if storage == nil {
		return 0, nil
	}
	keys, err := storage.Keys(ctx)
	if err != nil {
		return 0, err
	}
	victims := MarkerKeys(keys, cfg)
	if len(victims) == 0 {
		return 0, nil
	}
	if err := storage.Delete(ctx, victims...); err != nil {
		return 0, err
	}
	return len(victims), nil
}

func hasStoredCredentials(ctx context.Context, storage CredentialStorage, cfg StorageConfig) bool {
	if storage == nil {
		return false
	}
	keys, err := storage.Keys(ctx)
	if err != nil {
		return false
	}
	return HasCredentialMarker(keys, cfg)
}
