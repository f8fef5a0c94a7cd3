package intake

import (
	"context"
	"os"
	"testing"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
	"github.com/kenneth/splitstore/internal/store"
	"github.com/kenneth/splitstore/internal/upload"
)

func newTestCore(t *testing.T, s store.ArchiveStore) *Core {
	t.Helper()
	return &Core{
		Store:                 s,
		BundleSingleFileBytes: 100,
		BundleMaxBytes:        150,
		ChunkSizeBytes:        8,
	}
}

func writeTempFile(t *testing.T, size int64) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "intake-*.bin")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if size > 0 {
		if _, err := f.Write(make([]byte, size)); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	return f.Name()
}

func TestCreateFromUpload_SingleLargeFileGetsOwnArchive(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1 << 30})
	c := newTestCore(t, s)

	req := CreateRequest{
		OwnerID: "owner1",
		Files: []FileUpload{
			{Filename: "big.bin", StagingPath: writeTempFile(t, 120), Size: 120},
			{Filename: "small1.bin", StagingPath: writeTempFile(t, 10), Size: 10},
			{Filename: "small2.bin", StagingPath: writeTempFile(t, 10), Size: 10},
		},
	}

	ids, err := c.CreateFromUpload(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("want 2 archives (1 solo + 1 bundle), got %d", len(ids))
	}

	var sawSolo, sawBundle bool
	for _, id := range ids {
		a, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if a.IsBundle {
			sawBundle = true
			if len(a.Files) != 2 {
				t.Errorf("want 2 files in bundle, got %d", len(a.Files))
			}
		} else {
			sawSolo = true
			if a.OriginalSize != 120 {
				t.Errorf("unexpected solo size %d", a.OriginalSize)
			}
		}
		if a.Status != archive.StatusQueued {
			t.Errorf("want status queued, got %s", a.Status)
		}
		if !a.UsedBytesCharged {
			t.Errorf("batch path must mark UsedBytesCharged")
		}
	}
	if !sawSolo || !sawBundle {
		t.Fatalf("expected both a solo archive (>=threshold) and a bundle (<threshold), sawSolo=%v sawBundle=%v", sawSolo, sawBundle)
	}

	user, err := s.GetUser(context.Background(), "owner1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.UsedBytes != 140 {
		t.Errorf("want usedBytes 140 after batch charge, got %d", user.UsedBytes)
	}
}

func TestCreateFromUpload_PacksUnderBundleMaxBytes(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1 << 30})
	c := newTestCore(t, s) // BundleMaxBytes: 150

	req := CreateRequest{
		OwnerID: "owner1",
		Files: []FileUpload{
			{Filename: "a.bin", StagingPath: writeTempFile(t, 80), Size: 80},
			{Filename: "b.bin", StagingPath: writeTempFile(t, 80), Size: 80},
			{Filename: "c.bin", StagingPath: writeTempFile(t, 80), Size: 80},
		},
	}

	ids, err := c.CreateFromUpload(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateFromUpload: %v", err)
	}
	// Each file alone is under the 100-byte solo threshold, but no two
	// fit together under the 150-byte bundle ceiling, so each lands in
	// its own bin and none of them is marked a bundle (len==1).
	if len(ids) != 3 {
		t.Fatalf("want 3 archives, got %d", len(ids))
	}
	for _, id := range ids {
		a, err := s.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if a.OriginalSize > 150 {
			t.Errorf("archive %s exceeds bundle ceiling: %d", id, a.OriginalSize)
		}
	}
}

func TestCreateFromUpload_QuotaBoundaryExactAccepts(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 100, UsedBytes: 0})
	c := newTestCore(t, s)

	req := CreateRequest{
		OwnerID: "owner1",
		Files:   []FileUpload{{Filename: "exact.bin", StagingPath: writeTempFile(t, 100), Size: 100}},
	}
	if _, err := c.CreateFromUpload(context.Background(), req); err != nil {
		t.Fatalf("exact quota boundary should accept, got: %v", err)
	}
}

func TestCreateFromUpload_OneByteOverQuotaRejects(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 100, UsedBytes: 0})
	c := newTestCore(t, s)

	req := CreateRequest{
		OwnerID: "owner1",
		Files:   []FileUpload{{Filename: "over.bin", StagingPath: writeTempFile(t, 101), Size: 101}},
	}
	_, err := c.CreateFromUpload(context.Background(), req)
	if err != errclass.ErrQuotaExceeded {
		t.Fatalf("want ErrQuotaExceeded, got %v", err)
	}

	user, _ := s.GetUser(context.Background(), "owner1")
	if user.UsedBytes != 0 {
		t.Errorf("rejected intake must not charge usedBytes, got %d", user.UsedBytes)
	}
}

func TestCreateFromUpload_DiskFullRejectsSynchronously(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1 << 30})
	c := newTestCore(t, s)
	// A hard limit no real filesystem clears guarantees AllowLease fails.
	c.Gate = upload.NewDiskGate(t.TempDir(), 0, 1e18)

	req := CreateRequest{
		OwnerID: "owner1",
		Files:   []FileUpload{{Filename: "f.bin", StagingPath: writeTempFile(t, 10), Size: 10}},
	}
	_, err := c.CreateFromUpload(context.Background(), req)
	if err != errclass.ErrDiskFull {
		t.Fatalf("want ErrDiskFull, got %v", err)
	}
}

func TestCreateFromStream_CreatesEmptyProcessingArchive(t *testing.T) {
	s := store.NewMemStore()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1 << 30})
	c := newTestCore(t, s)

	id, err := c.CreateFromStream(context.Background(), StreamCreateRequest{OwnerID: "owner1", Filename: "stream.bin"})
	if err != nil {
		t.Fatalf("CreateFromStream: %v", err)
	}

	a, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Status != archive.StatusProcessing {
		t.Errorf("want status processing, got %s", a.Status)
	}
	if len(a.Parts) != 0 {
		t.Errorf("want empty parts, got %d", len(a.Parts))
	}
	if a.UsedBytesCharged {
		t.Errorf("streaming path must not charge usedBytes at creation")
	}
}
