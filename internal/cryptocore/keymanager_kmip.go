package cryptocore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ovh/kmip-go"
	"github.com/ovh/kmip-go/ttlv"
)

// kmipKeyManager unwraps the active data key through a KMIP server
// instead of deriving it from a plaintext environment variable. It
// mirrors the teacher's documented-but-partial KMS roadmap
// (keymanager.go: "Cosmian KMIP (v0.5): Fully implemented and tested"),
// generalized to any KMIP 1.4-speaking server via ovh/kmip-go.
//
// The wrapped key's ciphertext (produced once, out of band, by an
// operator using the KMIP server's Encrypt operation over the
// spec-derived key) is supplied via KMIPKeyManagerConfig.WrappedKeyHex;
// ActiveKey unwraps it lazily on first use and caches the result for
// the life of the process.
type kmipKeyManager struct {
	client     *kmip.Client
	keyID      string
	wrappedKey []byte

	mu     sync.Mutex
	cached *Key
}

// KMIPKeyManagerConfig configures the optional KMIP-backed key manager.
type KMIPKeyManagerConfig struct {
	Endpoint      string
	ClientCertPEM []byte
	ClientKeyPEM  []byte
	CACertPEM     []byte
	WrappingKeyID string
	WrappedKeyHex []byte
}

// NewKMIPKeyManager dials a KMIP server and returns a KeyManager that
// unwraps the active key on demand. Returns an error if the dial fails;
// callers should fall back to NewStaticKeyManager when KMIP is not
// configured (the spec's prescribed default path never requires this).
func NewKMIPKeyManager(ctx context.Context, cfg KMIPKeyManagerConfig) (KeyManager, error) {
	client, err := kmip.NewClient(ctx, cfg.Endpoint, kmip.WithClientCertificate(cfg.ClientCertPEM, cfg.ClientKeyPEM), kmip.WithRootCA(cfg.CACertPEM))
	if err != nil {
		return nil, fmt.Errorf("cryptocore: dial kmip server: %w", err)
	}
	return &kmipKeyManager{
		client:     client,
		keyID:      cfg.WrappingKeyID,
		wrappedKey: cfg.WrappedKeyHex,
	}, nil
}

func (m *kmipKeyManager) Provider() string { return "kmip" }

func (m *kmipKeyManager) ActiveKey(ctx context.Context) (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil {
		return *m.cached, nil
	}

	req := kmip.DecryptRequest{
		UniqueIdentifier: m.keyID,
		Data:             m.wrappedKey,
		CryptographicParameters: &kmip.CryptographicParameters{
			CryptographicAlgorithm: ttlv.CryptographicAlgorithmAES,
			BlockCipherMode:        ttlv.BlockCipherModeGCM,
		},
	}

	resp, err := m.client.Decrypt(ctx, req)
	if err != nil {
		return Key{}, fmt.Errorf("cryptocore: kmip unwrap active key: %w", err)
	}
	if len(resp.Data) != KeySize {
		return Key{}, fmt.Errorf("cryptocore: kmip returned %d-byte key, want %d", len(resp.Data), KeySize)
	}

	var k Key
	copy(k[:], resp.Data)
	m.cached = &k
	return k, nil
}

// Close releases the KMIP connection.
func (m *kmipKeyManager) Close() error {
	return m.client.Close()
}
