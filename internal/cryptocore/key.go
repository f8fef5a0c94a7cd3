// Package cryptocore implements spec §4.2: symmetric key derivation,
// per-part AES-256-GCM encrypt/decrypt, and ciphertext hashing.
package cryptocore

import (
	"context"
	"crypto/sha256"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Key is the derived symmetric data key shared by every part in the
// deployment (spec §4.2: "Symmetric key = SHA-256(masterSecret)").
type Key [KeySize]byte

// DeriveKey implements the spec-prescribed static derivation. It is the
// default KeyManager and is always available even when a KMIP-backed
// manager (keymanager_kmip.go) is configured, since the spec explicitly
// calls out this derivation as non-negotiable (§1 Non-goals:
// "cryptographic novelty... AES-GCM with a derived symmetric key is
// prescribed").
func DeriveKey(masterSecret string) Key {
	return sha256.Sum256([]byte(masterSecret))
}

// KeyManager abstracts how the deployment obtains its active symmetric
// key. The default implementation wraps DeriveKey; internal/cryptocore
// additionally ships a KMIP-backed manager for deployments that want
// the key itself sealed by an external KMS rather than held in a plain
// environment variable (mirrors the teacher's documented-but-deferred
// KMS roadmap).
type KeyManager interface {
	ActiveKey(ctx context.Context) (Key, error)
	Provider() string
}

// staticKeyManager is the spec-prescribed default.
type staticKeyManager struct{ key Key }

// NewStaticKeyManager derives the active key once from masterSecret.
func NewStaticKeyManager(masterSecret string) KeyManager {
	return &staticKeyManager{key: DeriveKey(masterSecret)}
}

func (m *staticKeyManager) ActiveKey(ctx context.Context) (Key, error) { return m.key, nil }
func (m *staticKeyManager) Provider() string                          { return "static-sha256" }
