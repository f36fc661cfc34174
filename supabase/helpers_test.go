package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
)

const testStorageKey = "sb-test-auth-token"

type recorded struct {
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

// fakeProject routes "METHOD /path" to canned handlers and records every
// request it serves.
type fakeProject struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	seen   map[string][]recorded
}

func newFakeProject(t *testing.T) (*fakeProject, *httptest.Server) {
	t.Helper()
	p := &fakeProject{
		routes: map[string]http.HandlerFunc{},
		seen:   map[string][]recorded{},
	}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakeProject) handle(route string, h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[route] = h
}

func (p *fakeProject) requests(route string) []recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recorded(nil), p.seen[route]...)
}

func (p *fakeProject) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.seen[route] = append(p.seen[route], recorded{Query: r.URL.Query(), Header: r.Header.Clone(), Body: body})
	h := p.routes[route]
	p.mu.Unlock()

	if h == nil {
		reply(w, http.StatusNotFound, map[string]string{"code": "PGRST205", "message": "no route " + route})
		return
	}
	h(w, r)
}

func reply(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respond(status int, v interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		reply(w, status, v)
	}
}

func tokenBody(access, refresh, userID string, ttl time.Duration) map[string]interface{} {
	return map[string]interface{}{
		"access_token":  access,
		"token_type":    "bearer",
		"expires_in":    int64(ttl / time.Second),
		"expires_at":    time.Now().Add(ttl).Unix(),
		"refresh_token": refresh,
		"user":          map[string]string{"id": userID, "email": userID + "@example.com"},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *credstore.Memory) {
	t.Helper()
	kv := credstore.NewMemory()
	c, err := New(Config{URL: srv.URL, AnonKey: "anon-key", StorageKey: testStorageKey}, kv)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, kv
}

// storeSession writes a persisted session blob the way the client does.
func storeSession(t *testing.T, kv credstore.KV, access, refresh, userID string, expiresIn time.Duration) {
	t.Helper()
	blob := fmt.Sprintf(`{"access_token":%q,"refresh_token":%q,"expires_at":%d,"user":{"id":%q,"email":"x@example.com"}}`,
		access, refresh, time.Now().Add(expiresIn).Unix(), userID)
	if err := kv.Set(context.Background(), testStorageKey, blob); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
}

type eventLog struct {
	mu  sync.Mutex
	evs []docportal.AuthEvent
}

func subscribe(c *Client) *eventLog {
	l := &eventLog{}
	c.Subscribe(func(ev docportal.AuthEvent) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.evs = append(l.evs, ev)
	})
	return l
}

func (l *eventLog) kinds() []docportal.AuthEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]docportal.AuthEventKind, len(l.evs))
	for i, ev := range l.evs {
		out[i] = ev.Kind
	}
	return out
}
