package localbackend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
	"github.com/MrEthical07/docportal/internal/rate"
	"github.com/MrEthical07/docportal/password"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
	cfg.Rate = rate.Config{
		MaxSignInFailures: 3,
		SignInWindow:      time.Minute,
		MaxRefreshes:      5,
		RefreshWindow:     time.Minute,
	}
	return cfg
}

func newTestBackend(t *testing.T) (*Backend, *credstore.Memory) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	return newBackendOn(t, mr)
}

func newBackendOn(t *testing.T, mr *miniredis.Miniredis) (*Backend, *credstore.Memory) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	kv := credstore.NewMemory()
	b, err := New(rdb, kv, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, kv
}

type recorder struct {
	mu    sync.Mutex
	kinds []docportal.AuthEventKind
}

func record(b *Backend) *recorder {
	r := &recorder{}
	b.Subscribe(func(ev docportal.AuthEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.kinds = append(r.kinds, ev.Kind)
	})
	return r
}

func (r *recorder) got() []docportal.AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]docportal.AuthEventKind(nil), r.kinds...)
}

func signedUp(t *testing.T, b *Backend, email, pw string) docportal.Identity {
	t.Helper()
	id, err := b.SignUp(context.Background(), email, pw)
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return id
}

func TestNewRejectsBadConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.JWTSecret = []byte("short")
	if _, err := New(rdb, credstore.NewMemory(), cfg); err == nil {
		t.Fatalf("expected short secret rejected")
	}
	cfg = testConfig()
	cfg.RefreshTTL = time.Minute
	if _, err := New(rdb, credstore.NewMemory(), cfg); err == nil {
		t.Fatalf("expected refresh ttl shorter than access ttl rejected")
	}
	if _, err := New(nil, credstore.NewMemory(), testConfig()); err == nil {
		t.Fatalf("expected nil redis rejected")
	}
}

func TestSignUpThenSignIn(t *testing.T) {
	b, kv := newTestBackend(t)
	events := record(b)
	ctx := context.Background()

	id := signedUp(t, b, "  Alice@Example.com ", "secret-pw")
	if id.Email != "alice@example.com" || id.ID == "" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if keys, _ := kv.Keys(ctx); len(keys) != 0 {
		t.Fatalf("sign-up must not create a client session, got %v", keys)
	}

	sess, err := b.SignInWithPassword(ctx, "alice@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if sess.User != id {
		t.Fatalf("expected %+v, got %+v", id, sess.User)
	}
	claims, err := b.tokens.ParseAccess(sess.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UserID() != id.ID || claims.SessionID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := kv.Get(ctx, DefaultStorageKey); err != nil {
		t.Fatalf("expected client session persisted: %v", err)
	}
	if got := events.got(); len(got) != 1 || got[0] != docportal.EventSignedIn {
		t.Fatalf("expected SIGNED_IN, got %v", got)
	}
	ids, err := b.sessions.ActiveSessionIDs(ctx, id.ID)
	if err != nil || len(ids) != 1 || ids[0] != claims.SessionID {
		t.Fatalf("expected one refresh session, got %v %v", ids, err)
	}
}

func TestSignUpRejections(t *testing.T) {
	b, _ := newTestBackend(t)
	signedUp(t, b, "bob@example.com", "secret-pw")

	cases := []struct {
		email, pw string
		want      error
	}{
		{"BOB@example.com", "another-pw", docportal.ErrAccountExists},
		{"not-an-email", "secret-pw", docportal.ErrSignupInvalid},
		{"carol@", "secret-pw", docportal.ErrSignupInvalid},
		{"carol@example.com", "123", docportal.ErrSignupInvalid},
	}
	for _, tc := range cases {
		if _, err := b.SignUp(context.Background(), tc.email, tc.pw); !errors.Is(err, tc.want) {
			t.Fatalf("SignUp(%q): expected %v, got %v", tc.email, tc.want, err)
		}
	}
}

func TestSignInFailuresAreRateLimited(t *testing.T) {
	b, _ := newTestBackend(t)
	signedUp(t, b, "dave@example.com", "secret-pw")
	ctx := context.Background()

	if _, err := b.SignInWithPassword(ctx, "nobody@example.com", "x"); !errors.Is(err, docportal.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := b.SignInWithPassword(ctx, "dave@example.com", "wrong"); !errors.Is(err, docportal.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := b.SignInWithPassword(ctx, "dave@example.com", "secret-pw"); !errors.Is(err, docportal.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited once the budget is spent, got %v", err)
	}
}

func TestSuccessfulSignInResetsFailureBudget(t *testing.T) {
	b, _ := newTestBackend(t)
	signedUp(t, b, "erin@example.com", "secret-pw")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = b.SignInWithPassword(ctx, "erin@example.com", "wrong")
	}
	if _, err := b.SignInWithPassword(ctx, "erin@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if n, err := b.limiter.SignInFailures(ctx, "erin@example.com"); err != nil || n != 0 {
		t.Fatalf("expected budget reset, got %d %v", n, err)
	}
}

func TestGetSessionAfterRevocation(t *testing.T) {
	b, kv := newTestBackend(t)
	id := signedUp(t, b, "frank@example.com", "secret-pw")
	ctx := context.Background()
	if _, err := b.SignInWithPassword(ctx, "frank@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}

	sess, err := b.GetSession(ctx)
	if err != nil || sess == nil {
		t.Fatalf("expected live session, got %+v %v", sess, err)
	}

	if n, err := b.RevokeUser(ctx, id.ID); err != nil || n != 1 {
		t.Fatalf("RevokeUser: expected 1, got %d %v", n, err)
	}
	events := record(b)

	sess, err = b.GetSession(ctx)
	if !docportal.IsCredentialError(err) || sess != nil {
		t.Fatalf("expected credential error, got %+v %v", sess, err)
	}
	if _, err := kv.Get(ctx, DefaultStorageKey); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected client session dropped, got %v", err)
	}
	if got := events.got(); len(got) != 1 || got[0] != docportal.EventSignedOut {
		t.Fatalf("expected SIGNED_OUT, got %v", got)
	}
}

func TestGetSessionRefreshesNearExpiry(t *testing.T) {
	b, _ := newTestBackend(t)
	signedUp(t, b, "gina@example.com", "secret-pw")
	ctx := context.Background()
	first, err := b.SignInWithPassword(ctx, "gina@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	events := record(b)

	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	next, err := b.GetSession(ctx)
	b.now = time.Now
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if next.RefreshToken == first.RefreshToken || next.User != first.User {
		t.Fatalf("expected rotated session for same user, got %+v", next)
	}
	if got := events.got(); len(got) != 1 || got[0] != docportal.EventTokenRefreshed {
		t.Fatalf("expected TOKEN_REFRESHED, got %v", got)
	}

	cached, _ := b.CachedSession(ctx)
	if cached.RefreshToken != next.RefreshToken {
		t.Fatalf("expected rotated session persisted")
	}
}

func TestReusedRefreshTokenDropsSession(t *testing.T) {
	b, kv := newTestBackend(t)
	signedUp(t, b, "hank@example.com", "secret-pw")
	ctx := context.Background()
	stale, err := b.SignInWithPassword(ctx, "hank@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if _, err := b.RefreshSession(ctx); err != nil {
		t.Fatalf("RefreshSession failed: %v", err)
	}

	// Present the superseded refresh token as if from another client.
	if err := b.state.Save(ctx, stale); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := b.RefreshSession(ctx); !docportal.IsCredentialError(err) {
		t.Fatalf("expected credential error on reuse, got %v", err)
	}
	if _, err := kv.Get(ctx, DefaultStorageKey); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected client session dropped, got %v", err)
	}
	if ids, _ := b.sessions.ActiveSessionIDs(ctx, stale.User.ID); len(ids) != 0 {
		t.Fatalf("expected refresh session deleted on reuse, got %v", ids)
	}
}

func TestSignOutDeletesRefreshSession(t *testing.T) {
	b, kv := newTestBackend(t)
	id := signedUp(t, b, "ivy@example.com", "secret-pw")
	ctx := context.Background()
	if _, err := b.SignInWithPassword(ctx, "ivy@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	events := record(b)

	if err := b.SignOut(ctx); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if ids, _ := b.sessions.ActiveSessionIDs(ctx, id.ID); len(ids) != 0 {
		t.Fatalf("expected refresh session removed, got %v", ids)
	}
	if _, err := kv.Get(ctx, DefaultStorageKey); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected client session dropped, got %v", err)
	}
	if got := events.got(); len(got) != 1 || got[0] != docportal.EventSignedOut {
		t.Fatalf("expected SIGNED_OUT, got %v", got)
	}
}

func TestSignOutDuringOutageStillClears(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	b, kv := newBackendOn(t, mr)
	signedUp(t, b, "jay@example.com", "secret-pw")
	ctx := context.Background()
	if _, err := b.SignInWithPassword(ctx, "jay@example.com", "secret-pw"); err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}

	mr.Close()
	if err := b.SignOut(ctx); !errors.Is(err, docportal.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if _, err := kv.Get(ctx, DefaultStorageKey); !errors.Is(err, credstore.ErrNotFound) {
		t.Fatalf("expected client session dropped, got %v", err)
	}
}

func TestRoleRecords(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()
	user := docportal.Identity{ID: "u1", Email: "u1@example.com"}

	if _, found, err := b.GetRole(ctx, "u1"); err != nil || found {
		t.Fatalf("expected no record, got %v %v", found, err)
	}
	if err := b.InsertUser(ctx, user, docportal.RoleUser); err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}
	if err := b.InsertUser(ctx, user, docportal.RoleAdmin); err != nil {
		t.Fatalf("second InsertUser failed: %v", err)
	}
	if role, found, _ := b.GetRole(ctx, "u1"); !found || role != docportal.RoleUser {
		t.Fatalf("expected insert to keep existing role, got %q", role)
	}
	if err := b.SetRole(ctx, "u1", docportal.RoleAdmin); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if role, _, _ := b.GetRole(ctx, "u1"); role != docportal.RoleAdmin {
		t.Fatalf("expected admin, got %q", role)
	}
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	first, err := b.EnsureUser(ctx, "admin@example.com", "secret-pw", docportal.RoleAdmin)
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	again, err := b.EnsureUser(ctx, "ADMIN@example.com", "other-pw", docportal.RoleAdmin)
	if err != nil || again != first {
		t.Fatalf("expected same identity, got %+v %v", again, err)
	}
	if role, _, _ := b.GetRole(ctx, first.ID); role != docportal.RoleAdmin {
		t.Fatalf("expected admin role, got %q", role)
	}
}

func TestStoreLoginOverLocalBackend(t *testing.T) {
	b, kv := newTestBackend(t)
	ctx := context.Background()
	if _, err := b.EnsureUser(ctx, "admin@example.com", "secret-pw", docportal.RoleAdmin); err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}

	store, err := docportal.New().WithBackend(b).WithStorage(kv).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer store.Close()
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if store.Snapshot().IsAuthenticated() {
		t.Fatalf("expected no identity before login")
	}

	res, err := store.Login(ctx, "admin@example.com", "secret-pw")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.Snapshot.IsAdmin() || res.Destination != "/admin" {
		t.Fatalf("expected admin landing, got %+v", res)
	}

	store.Logout(ctx)
	if store.Snapshot().IsAuthenticated() {
		t.Fatalf("expected signed out")
	}
	if keys, _ := kv.Keys(ctx); len(keys) != 0 {
		t.Fatalf("expected no credential markers left, got %v", keys)
	}
}
