package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_Bcrypt(t *testing.T) {
	h, err := NewHasher(SchemeBcrypt, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher returned error: %v", err)
	}
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") {
		t.Fatalf("expected bcrypt hash, got %q", hash)
	}

	ok, err := h.Verify("Secret123!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v, %v", ok, err)
	}
	ok, err = h.Verify("Wrong123!", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, got %v, %v", ok, err)
	}
}

func TestHasher_Argon2id(t *testing.T) {
	h, err := NewHasher(SchemeArgon2id, 0)
	if err != nil {
		t.Fatalf("NewHasher returned error: %v", err)
	}
	hash, err := h.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Fatalf("unexpected PHC string: %q", hash)
	}

	other, _ := h.Hash("Secret123!")
	if other == hash {
		t.Fatalf("expected a fresh salt per hash")
	}

	ok, err := h.Verify("Secret123!", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got %v, %v", ok, err)
	}
	ok, _ = h.Verify("Wrong123!", hash)
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestHasher_VerifiesEitherScheme(t *testing.T) {
	bc, _ := NewHasher(SchemeBcrypt, bcrypt.MinCost)
	ar, _ := NewHasher(SchemeArgon2id, 0)
	legacy, _ := bc.Hash("Secret123!")

	ok, err := ar.Verify("Secret123!", legacy)
	if err != nil || !ok {
		t.Fatalf("expected argon2id hasher to accept bcrypt hash, got %v, %v", ok, err)
	}
	if _, err := ar.Verify("Secret123!", "plaintext"); err == nil {
		t.Fatalf("expected unknown format to fail")
	}
	if _, err := ar.Verify("Secret123!", "$argon2id$broken"); err == nil {
		t.Fatalf("expected malformed PHC string to fail")
	}
}

func TestNewHasher_Rejects(t *testing.T) {
	if _, err := NewHasher("md5", 0); err == nil {
		t.Fatalf("expected unknown scheme to fail")
	}
	if _, err := NewHasher(SchemeBcrypt, 99); err == nil {
		t.Fatalf("expected out of range cost to fail")
	}
}
