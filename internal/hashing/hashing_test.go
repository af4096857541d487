package hashing

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_HashAndVerify(t *testing.T) {
	h := &Bcrypt{Cost: bcrypt.MinCost} // keep the test fast

	hash, err := h.Hash("Abc12345")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if hash == "Abc12345" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if !h.Verify("Abc12345", hash) {
		t.Fatalf("expected correct password to verify")
	}
	if h.Verify("wrong-password", hash) {
		t.Fatalf("expected wrong password to fail verification")
	}
}

func TestBcrypt_DistinctHashes(t *testing.T) {
	h := &Bcrypt{Cost: bcrypt.MinCost}

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("bcrypt must salt: identical hashes for the same input")
	}
}
