package cryptocore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestEncryptDecryptPart_RoundTrip(t *testing.T) {
	key := DeriveKey("master-secret")
	plaintext := []byte("HELLOWORLD!")

	enc, err := EncryptPart(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptPart: %v", err)
	}
	if len(enc.Ciphertext) != len(plaintext) {
		t.Errorf("expected ciphertext byte-aligned with plaintext under GCM, got %d want %d", len(enc.Ciphertext), len(plaintext))
	}

	got, err := DecryptPart(key, 0, enc.Ciphertext, enc.IV, enc.AuthTag, enc.Hash)
	if err != nil {
		t.Fatalf("DecryptPart: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestDecryptPart_HashMismatch(t *testing.T) {
	key := DeriveKey("master-secret")
	enc, err := EncryptPart(key, []byte("data"))
	if err != nil {
		t.Fatalf("EncryptPart: %v", err)
	}

	_, err = DecryptPart(key, 3, enc.Ciphertext, enc.IV, enc.AuthTag, "deadbeef")
	if err == nil {
		t.Fatal("expected hash mismatch error")
	}
	if err.Error() != "part_hash_mismatch:3" {
		t.Errorf("error = %q, want part_hash_mismatch:3", err.Error())
	}
}

func TestDecryptPart_TagVerificationFailure(t *testing.T) {
	key := DeriveKey("master-secret")
	enc, err := EncryptPart(key, []byte("data"))
	if err != nil {
		t.Fatalf("EncryptPart: %v", err)
	}

	tampered := append([]byte(nil), enc.Ciphertext...)
	tampered[0] ^= 0xFF
	// Recompute the hash over the tampered bytes so this exercises the
	// tag-verification path specifically, not the hash-mismatch path.
	_, err = DecryptPart(key, 1, tampered, enc.IV, enc.AuthTag, hashOf(tampered))
	if err == nil {
		t.Fatal("expected crypto verification failure")
	}
	if err.Error() != "part_crypto_missing:1" {
		t.Errorf("error = %q, want part_crypto_missing:1", err.Error())
	}
}

func TestDecryptLegacyWhole_RoundTrip(t *testing.T) {
	key := DeriveKey("master-secret")
	plaintext := []byte("legacy whole file contents")

	enc, err := EncryptPart(key, plaintext)
	if err != nil {
		t.Fatalf("EncryptPart: %v", err)
	}

	got, err := DecryptLegacyWhole(key, enc.Ciphertext, enc.IV, enc.AuthTag)
	if err != nil {
		t.Fatalf("DecryptLegacyWhole: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("decrypted = %q, want %q", got, plaintext)
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a := DeriveKey("same-secret")
	b := DeriveKey("same-secret")
	if a != b {
		t.Error("DeriveKey should be deterministic for the same input")
	}
	c := DeriveKey("different-secret")
	if a == c {
		t.Error("DeriveKey should differ for different inputs")
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
