package docportal

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

var errNetwork = errors.New("connection reset by peer")

type fakeBackend struct {
	mu sync.Mutex

	session    *BackendSession
	getErr     error
	getGate    chan struct{}
	getStarted chan struct{}
	getCalls   int

	signIn     map[string]*BackendSession
	signInErr  error
	signOutErr error
	signOuts   int
	signUpErr  error
	onSignIn   func()

	roles     map[string]Role
	roleErr   error
	roleGates map[string]chan struct{}
	inserted  []Identity

	subs   map[int]func(AuthEvent)
	subSeq int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		signIn:    map[string]*BackendSession{},
		roles:     map[string]Role{},
		roleGates: map[string]chan struct{}{},
		subs:      map[int]func(AuthEvent){},
	}
}

func (f *fakeBackend) SignInWithPassword(_ context.Context, email, password string) (*BackendSession, error) {
	f.mu.Lock()
	if f.signInErr != nil {
		f.mu.Unlock()
		return nil, f.signInErr
	}
	sess, ok := f.signIn[email+"|"+password]
	if !ok {
		f.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	f.session = sess
	hook := f.onSignIn
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return sess, nil
}

func (f *fakeBackend) SignUp(_ context.Context, email, _ string) (Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signUpErr != nil {
		return Identity{}, f.signUpErr
	}
	return Identity{ID: "new-" + email, Email: email}, nil
}

func (f *fakeBackend) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	f.session = nil
	return f.signOutErr
}

func (f *fakeBackend) GetSession(ctx context.Context) (*BackendSession, error) {
	f.mu.Lock()
	f.getCalls++
	gate := f.getGate
	started := f.getStarted
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.getErr
}

func (f *fakeBackend) Subscribe(fn func(AuthEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subSeq++
	id := f.subSeq
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeBackend) GetRole(_ context.Context, userID string) (Role, bool, error) {
	f.mu.Lock()
	gate := f.roleGates[userID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleErr != nil {
		return "", false, f.roleErr
	}
	role, ok := f.roles[userID]
	return role, ok, nil
}

func (f *fakeBackend) InsertUser(_ context.Context, id Identity, role Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, id)
	f.roles[id.ID] = role
	return nil
}

func (f *fakeBackend) emit(ev AuthEvent) {
	f.mu.Lock()
	subs := make([]func(AuthEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) calls() (get, signOut int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.signOuts
}

type mapStorage struct {
	mu      sync.Mutex
	data    map[string]string
	keysErr error
}

func newMapStorage(keys ...string) *mapStorage {
	m := &mapStorage{data: map[string]string{}}
	for _, k := range keys {
		m.data[k] = "{}"
	}
	return m
}

func (m *mapStorage) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keysErr != nil {
		return nil, m.keysErr
	}
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mapStorage) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mapStorage) put(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = "{}"
}

func (m *mapStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *mapStorage) vendorKeys() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, "sb-") || strings.Contains(k, "supabase") {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const sessionKey = "sb-testproj-auth-token"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.InitTimeout = 200 * time.Millisecond
	cfg.Session.RecheckTimeout = 200 * time.Millisecond
	cfg.Session.RoleTimeout = 200 * time.Millisecond
	cfg.Session.SignOutTimeout = 200 * time.Millisecond
	cfg.Gate.ResolveBudget = time.Second
	return cfg
}

func buildTestStore(t *testing.T, be *fakeBackend, st CredentialStorage, opts ...func(*Builder)) *Store {
	t.Helper()

	b := New().WithConfig(testConfig()).WithBackend(be).WithStorage(st)
	for _, opt := range opts {
		opt(b)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func sessionFor(id, email string, expiresIn time.Duration) *BackendSession {
	return &BackendSession{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(expiresIn),
		User:         Identity{ID: id, Email: email},
	}
}

// loggedIn returns an initialized Store authenticated as u1 with role.
func loggedIn(t *testing.T, role Role) (*Store, *fakeBackend, *mapStorage) {
	t.Helper()

	be := newFakeBackend()
	be.roles["u1"] = role
	be.signIn["alice@example.com|pw"] = sessionFor("u1", "alice@example.com", 10*time.Minute)
	st := newMapStorage()
	s := buildTestStore(t, be, st)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := s.Login(context.Background(), "alice@example.com", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	st.put(sessionKey)
	return s, be, st
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// hookHandler is a slog.Handler that runs fn the first time a record with
// message msg is handled.
type hookHandler struct {
	msg  string
	fn   func()
	once *sync.Once
}

func newHookLogger(msg string, fn func()) *slog.Logger {
	return slog.New(hookHandler{msg: msg, fn: fn, once: &sync.Once{}})
}

func (h hookHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h hookHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(h.fn)
	}
	return nil
}

func (h hookHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h hookHandler) WithGroup(string) slog.Handler       { return h }
