package upload

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/cryptocore"
	"github.com/kenneth/splitstore/internal/provider"
	"github.com/kenneth/splitstore/internal/store"
)

type fakeProvider struct {
	family archive.Provider
	mu     sync.Mutex
	blobs  map[string][]byte
	nextID int
}

func newFakeProvider(family archive.Provider) *fakeProvider {
	return &fakeProvider{family: family, blobs: make(map[string][]byte)}
}

func (f *fakeProvider) Family() archive.Provider { return f.family }

func (f *fakeProvider) UploadBlob(ctx context.Context, handle string, data []byte) (provider.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := handle + ":" + string(rune('a'+f.nextID))
	f.blobs[id] = append([]byte(nil), data...)
	return provider.UploadResult{RemoteID: id, URL: "https://example.test/" + id}, nil
}

func (f *fakeProvider) RefreshURL(ctx context.Context, handle, remoteID string) (provider.UploadResult, error) {
	return provider.UploadResult{RemoteID: remoteID, URL: "https://example.test/" + remoteID}, nil
}

func (f *fakeProvider) DeleteBlob(ctx context.Context, handle, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, remoteID)
	return nil
}

func TestPipeline_RunChunksEncryptsAndCommitsAllParts(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1 << 30})

	a := &archive.Archive{
		ID:             "arc1",
		OwnerID:        "owner1",
		ChunkSizeBytes: 4,
	}
	if err := s.Insert(context.Background(), a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	webhook := newFakeProvider(archive.ProviderWebhook)
	registry := provider.NewRegistry(webhook, newFakeProvider(archive.ProviderBot), 1)

	key := cryptocore.DeriveKey("test-secret")
	pipe := &Pipeline{
		Store:       s,
		Providers:   registry,
		Key:         key,
		Concurrency: 2,
		NWebhooks:   1,
	}

	plaintext := []byte("0123456789AB") // 12 bytes / chunk 4 = 3 parts
	r := bytes.NewReader(plaintext)

	if err := pipe.Run(context.Background(), a.ID, r, 4, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := s.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(got.Parts))
	}
	if got.UploadedParts != 3 {
		t.Errorf("UploadedParts = %d, want 3", got.UploadedParts)
	}

	for _, p := range got.Parts {
		if p.IV == "" || p.AuthTag == "" || p.Hash == "" {
			t.Errorf("part %d missing crypto metadata", p.Index)
		}
		if p.Provider != archive.ProviderWebhook {
			t.Errorf("part %d provider = %v, want webhook", p.Index, p.Provider)
		}
	}
}

func TestExpectedPartCount_CeilDivision(t *testing.T) {
	cases := []struct {
		size, chunk int64
		want        int
	}{
		{0, 4, 0},
		{4, 4, 1},
		{5, 4, 2},
		{12, 4, 3},
		{13, 4, 4},
	}
	for _, c := range cases {
		got := ExpectedPartCount(c.size, int(c.chunk))
		if got != c.want {
			t.Errorf("ExpectedPartCount(%d, %d) = %d, want %d", c.size, c.chunk, got, c.want)
		}
	}
}
