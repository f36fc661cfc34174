package supabase

import (
	"errors"
	"net/http"
	"testing"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
)

func TestNewValidatesConfig(t *testing.T) {
	cases := []Config{
		{},
		{URL: "abcd.supabase.co", AnonKey: "k"},
		{URL: "ftp://abcd.supabase.co", AnonKey: "k"},
		{URL: "https://abcd.supabase.co", AnonKey: "  "},
	}
	for _, cfg := range cases {
		if _, err := New(cfg, credstore.NewMemory()); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
	if _, err := New(Config{URL: "https://abcd.supabase.co", AnonKey: "k"}, nil); err == nil {
		t.Fatalf("expected error without storage")
	}
}

func TestStorageKeyFromProjectRef(t *testing.T) {
	c, err := New(Config{URL: "https://abcd1234.supabase.co/", AnonKey: "k"}, credstore.NewMemory())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := c.StorageKey(); got != "sb-abcd1234-auth-token" {
		t.Fatalf("unexpected storage key %q", got)
	}

	c, err = New(Config{URL: "https://abcd1234.supabase.co", AnonKey: "k", StorageKey: "custom"}, credstore.NewMemory())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := c.StorageKey(); got != "custom" {
		t.Fatalf("expected override, got %q", got)
	}
}

func TestParseAPIErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
		want   error
	}{
		{"gotrue bad jwt", 403, `{"code":403,"error_code":"bad_jwt","msg":"invalid JWT"}`, "bad_jwt", docportal.ErrCredentialInvalid},
		{"legacy grant error", 400, `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`, "invalid_grant", nil},
		{"postgrest expired", 401, `{"code":"PGRST301","message":"JWT expired"}`, "PGRST301", docportal.ErrCredentialInvalid},
		{"plain unauthorized", 401, ``, "", docportal.ErrCredentialInvalid},
		{"rate limited", 429, `{"msg":"too many"}`, "", docportal.ErrRateLimited},
		{"server error", 500, `<html>oops</html>`, "", docportal.ErrBackendUnavailable},
		{"fk violation", 409, `{"code":"23503","message":"violates foreign key"}`, "23503", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := parseAPIError(tc.status, []byte(tc.body))
			if e.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, e.Code)
			}
			if tc.want == nil && e.Err != nil {
				t.Fatalf("expected no sentinel, got %v", e.Err)
			}
			if tc.want != nil && !errors.Is(e, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, e.Err)
			}
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	e := &APIError{Status: http.StatusNotFound}
	if got := e.Error(); got != "supabase: 404: Not Found" {
		t.Fatalf("unexpected message %q", got)
	}
	e = &APIError{Status: 400, Code: "23514", Message: "check violation"}
	if got := e.Error(); got != "supabase: 400 23514: check violation" {
		t.Fatalf("unexpected message %q", got)
	}
}
