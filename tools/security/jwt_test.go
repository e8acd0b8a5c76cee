package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("test-secret"))
	token, exp, err := Generate(opts, "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatalf("expiry in the past: %v", exp)
	}

	sub, err := Parse(opts, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub != "user-1" {
		t.Fatalf("subject = %q", sub)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, _, err := Generate(DefaultOptions([]byte("key-a")), "user-1")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Parse(DefaultOptions([]byte("key-b")), token); err == nil {
		t.Fatalf("wrong key accepted")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("k"))
	now := time.Now().Add(-time.Hour)
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "user-1",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	})
	signed, err := tok.SignedString(opts.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := Parse(opts, signed); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(DefaultOptions([]byte("k")), ""); err == nil {
		t.Fatalf("empty token accepted")
	}
}
