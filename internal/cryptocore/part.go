package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/kenneth/splitstore/internal/errclass"
)

// IVSize is the GCM nonce length (spec §4.2: random 12-byte IV).
const IVSize = 12

// newGCM builds an AES-256-GCM AEAD from the active key.
func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptocore: new gcm: %w", err)
	}
	return gcm, nil
}

// EncryptedPart is the output of EncryptPart: everything that ends up
// stored on a Part record (spec §3 Part, §4.2).
type EncryptedPart struct {
	Ciphertext []byte
	IV         string // base64
	AuthTag    string // base64
	Hash       string // hex sha256 of Ciphertext
}

// EncryptPart encrypts one plaintext chunk with a fresh random IV and
// returns the ciphertext, IV, auth tag and ciphertext hash separately —
// Go's GCM.Seal appends the tag to its output, so EncryptPart splits it
// back off because the wire/storage format keeps tag and ciphertext in
// distinct fields (spec §9 open question: "ciphertext and plaintext are
// byte-aligned under GCM — the tag is stored separately in authTag").
func EncryptPart(key Key, plaintext []byte) (EncryptedPart, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return EncryptedPart{}, err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedPart{}, fmt.Errorf("cryptocore: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagSize := gcm.Overhead()
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	hash := sha256.Sum256(ciphertext)

	return EncryptedPart{
		Ciphertext: ciphertext,
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Hash:       hex.EncodeToString(hash[:]),
	}, nil
}

// DecryptPart verifies the ciphertext hash and GCM tag, then decrypts.
// index is used only to annotate the returned error per spec §4.2/§7
// (`part_hash_mismatch:<index>` / `part_crypto_missing:<index>`).
func DecryptPart(key Key, index int, ciphertext []byte, ivB64, authTagB64, expectedHash string) ([]byte, error) {
	gotHash := sha256.Sum256(ciphertext)
	if hex.EncodeToString(gotHash[:]) != expectedHash {
		return nil, &errclass.PartHashMismatch{Index: index}
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || len(iv) != IVSize {
		return nil, &errclass.PartCryptoMissing{Index: index}
	}
	tag, err := base64.StdEncoding.DecodeString(authTagB64)
	if err != nil || len(tag) == 0 {
		return nil, &errclass.PartCryptoMissing{Index: index}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, &errclass.PartCryptoMissing{Index: index}
	}
	return plaintext, nil
}

// DecryptLegacyWhole decrypts a v1 archive, which stores a single
// IV/auth-tag pair at the archive level over the entire ciphertext
// (spec §3 crypto, §4.2, §9: "v1 legacy format... cannot be decrypted
// incrementally, so range requests are refused").
func DecryptLegacyWhole(key Key, ciphertext []byte, ivB64, authTagB64 string) ([]byte, error) {
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil || len(iv) != IVSize {
		return nil, &errclass.PartCryptoMissing{Index: -1}
	}
	tag, err := base64.StdEncoding.DecodeString(authTagB64)
	if err != nil || len(tag) == 0 {
		return nil, &errclass.PartCryptoMissing{Index: -1}
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, &errclass.PartCryptoMissing{Index: -1}
	}
	return plaintext, nil
}
