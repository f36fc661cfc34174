package internal

import (
	"errors"
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("session id: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("secret: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	gotSID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotSID != sid.String() || gotSecret != secret {
		t.Fatal("round trip mismatch")
	}
	if HashRefreshSecret(secret) == HashRefreshSecret([32]byte{}) {
		t.Fatal("hash should depend on the secret")
	}
}

func TestDecodeRefreshTokenMalformed(t *testing.T) {
	for _, tok := range []string{"", "abc", "!!!", "dG9vLXNob3J0"} {
		if _, _, err := DecodeRefreshToken(tok); !errors.Is(err, ErrMalformedRefreshToken) {
			t.Errorf("token %q: expected ErrMalformedRefreshToken, got %v", tok, err)
		}
	}
	if _, err := EncodeRefreshToken("not-a-session", [32]byte{}); err == nil {
		t.Fatal("expected invalid session id to be rejected")
	}
}
