package docportal

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	be := newFakeBackend()
	s := buildTestStore(t, be, newMapStorage(), func(b *Builder) {
		b.WithAuditSink(sink)
		b.config.Audit.Enabled = false
	})
	_ = s.Initialize(context.Background())

	_, _ = s.Login(context.Background(), "alice@example.com", "wrong-password")
	time.Sleep(30 * time.Millisecond)

	if got := sink.count.Load(); got != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", got)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	const secret = "correct-horse-battery"
	be := newFakeBackend()
	be.signIn["alice@example.com|"+secret] = sessionFor("u1", "alice@example.com", time.Hour)
	sink := NewChannelSink(16)
	s := buildTestStore(t, be, newMapStorage(), func(b *Builder) { b.WithAuditSink(sink) })
	_ = s.Initialize(context.Background())

	_, _ = s.Login(context.Background(), "alice@example.com", "nope-"+secret)
	if _, err := s.Login(context.Background(), "alice@example.com", secret); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	s.Logout(context.Background())

	needles := []string{secret, "access-u1", "refresh-u1"}
	timeout := time.After(2 * time.Second)
	seen := 0
	for seen < 3 {
		select {
		case ev := <-sink.Events():
			seen++
			for _, n := range needles {
				if strings.Contains(ev.Error, n) {
					t.Fatalf("secret leaked in error of %s", ev.EventType)
				}
				for k, v := range ev.Metadata {
					if strings.Contains(v, n) {
						t.Fatalf("secret leaked in metadata %s of %s", k, ev.EventType)
					}
				}
			}
		case <-timeout:
			t.Fatalf("expected 3 audit events, got %d", seen)
		}
	}
}
