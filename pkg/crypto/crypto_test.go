package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestGenerateTokenIsURLSafe(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("expected 43 characters for 32 bytes, got %d", len(token))
	}
	if strings.ContainsAny(token, "+/=") {
		t.Fatalf("token is not url safe: %s", token)
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestGenerateTokenFromDeterministicSource(t *testing.T) {
	source := bytes.NewReader(bytes.Repeat([]byte{0xff}, 3))
	token, err := GenerateTokenFrom(source, 3)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if token != "____" {
		t.Fatalf("unexpected token %q", token)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateTokenFromFailures(t *testing.T) {
	if _, err := GenerateTokenFrom(failingReader{}, 16); err == nil {
		t.Fatal("expected reader failure to surface")
	}
	if _, err := GenerateToken(0); err == nil {
		t.Fatal("expected zero length to be rejected")
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("abc")
	if a != HashToken("abc") {
		t.Fatal("expected stable digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(a))
	}
	if !EqualTokens(a, HashToken("abc")) || EqualTokens(a, HashToken("abd")) {
		t.Fatal("unexpected constant time comparison result")
	}
}
