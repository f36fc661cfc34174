package credstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisKV(t *testing.T, namespace string) *credstore.Redis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return credstore.NewRedis(rdb, namespace)
}

func implementations(t *testing.T) map[string]credstore.KV {
	t.Helper()
	rkv := newRedisKV(t, "test:cred")
	return map[string]credstore.KV{
		"memory": credstore.NewMemory(),
		"redis":  rkv,
		"file":   credstore.NewFile(filepath.Join(t.TempDir(), "nested", "creds.json")),
	}
}

func TestKVRoundTripAndDelete(t *testing.T) {
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := kv.Get(ctx, "missing"); !errors.Is(err, credstore.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := kv.Set(ctx, "b", "2"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := kv.Set(ctx, "a", "1"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if v, err := kv.Get(ctx, "a"); err != nil || v != "1" {
				t.Fatalf("get a: %q %v", v, err)
			}

			keys, err := kv.Keys(ctx)
			if err != nil {
				t.Fatalf("keys: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"a", "b"}) {
				t.Fatalf("unexpected keys %v", keys)
			}

			if err := kv.Delete(ctx, "a", "not-there"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			keys, _ = kv.Keys(ctx)
			if !reflect.DeepEqual(keys, []string{"b"}) {
				t.Fatalf("unexpected keys after delete %v", keys)
			}
		})
	}
}

func TestMarkerPolicyOverEveryStorage(t *testing.T) {
	cfg := docportal.DefaultConfig().Storage
	for name, kv := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, k := range []string{"sb-proj-auth-token", "sb-proj-code-verifier", "supabase.auth.token", "theme"} {
				if err := kv.Set(ctx, k, "{}"); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}

			keys, _ := kv.Keys(ctx)
			if !docportal.HasCredentialMarker(keys, cfg) {
				t.Fatal("expected marker to be detected")
			}

			n, err := docportal.ClearCredentials(ctx, kv, cfg)
			if err != nil {
				t.Fatalf("clear: %v", err)
			}
			if n != 3 {
				t.Fatalf("expected 3 keys cleared, got %d", n)
			}

			keys, _ = kv.Keys(ctx)
			if !reflect.DeepEqual(keys, []string{"theme"}) {
				t.Fatalf("expected only theme left, got %v", keys)
			}
			if docportal.HasCredentialMarker(keys, cfg) {
				t.Fatal("marker must be gone")
			}
		})
	}
}

func TestRedisNamespaceIsolation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	a := credstore.NewRedis(rdb, "portal-a")
	b := credstore.NewRedis(rdb, "portal-b:")
	_ = a.Set(ctx, "sb-x-auth-token", "{}")

	keys, err := b.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("namespace leaked: %v", keys)
	}
	if !mr.Exists("portal-a:sb-x-auth-token") {
		t.Fatal("expected namespaced key in redis")
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	kv := credstore.NewRedis(rdb, "")
	mr.Close()

	if _, err := kv.Keys(context.Background()); !errors.Is(err, credstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	ctx := context.Background()

	first := credstore.NewFile(path)
	if err := first.Set(ctx, "sb-p-auth-token", `{"access_token":"x"}`); err != nil {
		t.Fatalf("set: %v", err)
	}

	second := credstore.NewFile(path)
	v, err := second.Get(ctx, "sb-p-auth-token")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if v != `{"access_token":"x"}` {
		t.Fatalf("unexpected value %q", v)
	}
}
