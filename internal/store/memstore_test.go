package store

import (
	"context"
	"testing"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
)

func TestLeaseNextQueued_PrefersHigherPriorityThenOldest(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	old := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)

	_ = s.Insert(ctx, &archive.Archive{ID: "low-old", Status: archive.StatusQueued, Priority: 1, CreatedAt: old})
	_ = s.Insert(ctx, &archive.Archive{ID: "low-new", Status: archive.StatusQueued, Priority: 1, CreatedAt: newer})
	_ = s.Insert(ctx, &archive.Archive{ID: "high", Status: archive.StatusQueued, Priority: 3, CreatedAt: newer})

	leased, err := s.LeaseNextQueued(ctx)
	if err != nil {
		t.Fatalf("LeaseNextQueued: %v", err)
	}
	if leased.ID != "high" {
		t.Errorf("expected highest priority archive leased first, got %s", leased.ID)
	}
	if leased.Status != archive.StatusProcessing {
		t.Errorf("expected leased archive to be processing, got %s", leased.Status)
	}

	leased2, err := s.LeaseNextQueued(ctx)
	if err != nil {
		t.Fatalf("LeaseNextQueued: %v", err)
	}
	if leased2.ID != "low-old" {
		t.Errorf("expected oldest of equal-priority archives leased next, got %s", leased2.ID)
	}
}

func TestResetStaleProcessing_ZeroesCountersOnlyWithoutParts(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	cutoff := time.Now().Add(-30 * time.Minute)

	_ = s.Insert(ctx, &archive.Archive{
		ID: "no-parts", Status: archive.StatusProcessing, UpdatedAt: cutoff.Add(-time.Minute),
		UploadedBytes: 50, UploadedParts: 1, // stale counters with no committed parts
	})
	_ = s.Insert(ctx, &archive.Archive{
		ID: "with-parts", Status: archive.StatusProcessing, UpdatedAt: cutoff.Add(-time.Minute),
		Parts: []archive.Part{{Index: 0, Size: 10}}, UploadedBytes: 10, UploadedParts: 1,
	})
	_ = s.Insert(ctx, &archive.Archive{
		ID: "fresh", Status: archive.StatusProcessing, UpdatedAt: time.Now(),
	})

	n, err := s.ResetStaleProcessing(ctx, cutoff)
	if err != nil {
		t.Fatalf("ResetStaleProcessing: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 archives reset, got %d", n)
	}

	noParts, _ := s.Get(ctx, "no-parts")
	if noParts.Status != archive.StatusQueued || noParts.UploadedBytes != 0 || noParts.UploadedParts != 0 {
		t.Errorf("expected no-parts archive reset with zeroed counters, got %+v", noParts)
	}

	withParts, _ := s.Get(ctx, "with-parts")
	if withParts.Status != archive.StatusQueued || withParts.UploadedBytes != 10 {
		t.Errorf("expected with-parts archive reset but counters preserved, got %+v", withParts)
	}

	fresh, _ := s.Get(ctx, "fresh")
	if fresh.Status != archive.StatusProcessing {
		t.Errorf("expected fresh archive untouched, got %s", fresh.Status)
	}
}

func TestAppendPart_DedupesAndRecomputesCounters(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.Insert(ctx, &archive.Archive{ID: "a1", Status: archive.StatusProcessing})

	_ = s.AppendPart(ctx, "a1", archive.Part{Index: 0, Size: 10, Hash: "old"})
	_ = s.AppendPart(ctx, "a1", archive.Part{Index: 1, Size: 20, Hash: "h1"})
	_ = s.AppendPart(ctx, "a1", archive.Part{Index: 0, Size: 12, Hash: "new"}) // replaces index 0

	a, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.UploadedParts != 2 {
		t.Fatalf("expected 2 unique parts, got %d", a.UploadedParts)
	}
	if a.UploadedBytes != 32 {
		t.Errorf("expected uploadedBytes=32 (12+20), got %d", a.UploadedBytes)
	}
	if a.Parts[0].Hash != "new" {
		t.Errorf("expected index 0 to carry newest hash, got %s", a.Parts[0].Hash)
	}
}

func TestClaimForDeletion_OrdersByRequestedThenTrashed(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	now := time.Now()

	oldTrash := now.Add(-40 * 24 * time.Hour)
	recentTrash := now.Add(-35 * 24 * time.Hour)
	requested := now.Add(-time.Hour)

	_ = s.Insert(ctx, &archive.Archive{ID: "trash-old", TrashedAt: &oldTrash})
	_ = s.Insert(ctx, &archive.Archive{ID: "trash-recent", TrashedAt: &recentTrash})
	_ = s.Insert(ctx, &archive.Archive{ID: "purge-requested", DeleteRequestedAt: &requested})
	_ = s.Insert(ctx, &archive.Archive{ID: "too-fresh-trash", TrashedAt: &now})

	claimed, err := s.ClaimForDeletion(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ClaimForDeletion: %v", err)
	}
	if claimed.ID != "purge-requested" {
		t.Errorf("expected purge-requested claimed first, got %s", claimed.ID)
	}
	if !claimed.Deleting {
		t.Error("expected claimed archive marked deleting")
	}

	claimed2, err := s.ClaimForDeletion(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ClaimForDeletion: %v", err)
	}
	if claimed2.ID != "trash-old" {
		t.Errorf("expected trash-old claimed next (oldest eligible trash), got %s", claimed2.ID)
	}

	if _, err := s.Get(ctx, "too-fresh-trash"); err != nil {
		t.Fatalf("too-fresh-trash should still exist: %v", err)
	}
	a, _ := s.Get(ctx, "too-fresh-trash")
	if a.Deleting {
		t.Error("too-fresh-trash should not have been claimed (under 30d retention)")
	}
}

func TestFinishDeletion_RefundsQuotaAndStripsParts(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	s.SeedUser(archive.User{ID: "owner1", QuotaBytes: 1000, UsedBytes: 500})

	_ = s.Insert(ctx, &archive.Archive{
		ID: "a1", OwnerID: "owner1", OriginalSize: 200,
		Parts: []archive.Part{{Index: 0, Size: 100}},
	})

	if err := s.FinishDeletion(ctx, "a1", time.Now()); err != nil {
		t.Fatalf("FinishDeletion: %v", err)
	}

	a, _ := s.Get(ctx, "a1")
	if a.DeletedAt == nil {
		t.Error("expected deletedAt set")
	}
	if len(a.Parts) != 0 {
		t.Error("expected parts stripped")
	}

	u, _ := s.GetUser(ctx, "owner1")
	if u.UsedBytes != 300 {
		t.Errorf("expected usedBytes decremented by originalSize to 300, got %d", u.UsedBytes)
	}
}
