package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h, err := NewHasher(4)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	for _, pw := range []string{"s3cret", "пароль", " spaced ", "x"} {
		digest, err := h.Hash(pw)
		if err != nil {
			t.Fatalf("Hash(%q): %v", pw, err)
		}
		if digest == pw {
			t.Fatalf("digest must not equal plaintext")
		}
		if !h.Verify(pw, digest) {
			t.Fatalf("Verify(%q) = false for its own digest", pw)
		}
		if h.Verify(pw+"!", digest) {
			t.Fatalf("Verify accepted a different plaintext for %q", pw)
		}
	}
}

func TestHasherSaltsDigests(t *testing.T) {
	h, _ := NewHasher(4)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatalf("expected distinct salts")
	}
}

func TestHasherMalformedDigest(t *testing.T) {
	h, _ := NewHasher(4)
	for _, digest := range []string{"", "plain", "$2a$04$short", "$9z$04$" + dummyHash[7:]} {
		if h.Verify("anything", digest) {
			t.Fatalf("malformed digest %q verified", digest)
		}
	}
}

func TestHasherRejectsEmptyAndBadCost(t *testing.T) {
	h, _ := NewHasher(4)
	if _, err := h.Hash(""); err == nil {
		t.Fatalf("expected error for empty password")
	}
	if _, err := NewHasher(3); err == nil {
		t.Fatalf("expected error for cost below minimum")
	}
	if _, err := NewHasher(32); err == nil {
		t.Fatalf("expected error for cost above maximum")
	}
}

type noUsers struct{ UserStore }

func TestServiceDummyDigestMatchesHasherCost(t *testing.T) {
	h, err := NewHasher(6)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tokens, err := NewTokenProvider(TokenConfig{Secret: "0123456789abcdef0123456789abcdef", Issuer: "shopcore"})
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	svc, err := NewService(noUsers{}, h, tokens)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(svc.dummyHash))
	if err != nil {
		t.Fatalf("dummy digest is not bcrypt: %v", err)
	}
	if cost != 6 {
		t.Fatalf("dummy digest cost = %d, want the hasher's 6", cost)
	}
}
