package store

import (
	"context"
	"sync"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
)

// MemStore is an in-process reference ArchiveStore. All mutations take
// a single mutex as the serialization point, standing in for the real
// document store's atomic find-and-modify (spec §9 design notes: "If
// reimplementing on a store that lacks [atomic array append], wrap with
// a per-archive mutex; never trust in-memory uploadedParts across
// restarts — recompute from the persisted parts").
type MemStore struct {
	mu       sync.Mutex
	archives map[archive.ID]*archive.Archive
	users    map[string]*archive.User
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		archives: make(map[archive.ID]*archive.Archive),
		users:    make(map[string]*archive.User),
	}
}

// SeedUser installs a user record directly (test/bootstrap helper).
func (s *MemStore) SeedUser(u archive.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func cloneArchive(a *archive.Archive) *archive.Archive {
	cp := *a
	cp.Parts = append([]archive.Part(nil), a.Parts...)
	cp.Files = append([]archive.File(nil), a.Files...)
	return &cp
}

func (s *MemStore) Get(ctx context.Context, id archive.ID) (*archive.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archives[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneArchive(a), nil
}

func (s *MemStore) Insert(ctx context.Context, a *archive.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := a.CreatedAt
	if now.IsZero() {
		now = timeNow()
	}
	a.CreatedAt = now
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	s.archives[a.ID] = cloneArchive(a)
	return nil
}

// timeNow exists as a seam; production code always passes explicit
// timestamps from the caller so scheduling stays deterministic and
// testable, but Insert needs a fallback when a caller forgets to stamp
// CreatedAt.
func timeNow() time.Time { return time.Now() }

func (s *MemStore) LeaseNextQueued(ctx context.Context) (*archive.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *archive.Archive
	for _, a := range s.archives {
		if a.Status != archive.StatusQueued {
			continue
		}
		if best == nil || a.Priority > best.Priority ||
			(a.Priority == best.Priority && a.CreatedAt.Before(best.CreatedAt)) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}

	best.Status = archive.StatusProcessing
	best.Error = ""
	best.UpdatedAt = time.Now()
	return cloneArchive(best), nil
}

func (s *MemStore) ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.archives {
		if a.Status != archive.StatusProcessing {
			continue
		}
		if a.UpdatedAt.After(olderThan) {
			continue
		}
		a.Status = archive.StatusQueued
		if archive.UniquePartCount(a.Parts) == 0 {
			a.UploadedBytes = 0
			a.UploadedParts = 0
		}
		a.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (s *MemStore) ResetAllProcessingUnconditional(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, a := range s.archives {
		if a.Status != archive.StatusProcessing {
			continue
		}
		a.Status = archive.StatusQueued
		if archive.UniquePartCount(a.Parts) == 0 {
			a.UploadedBytes = 0
			a.UploadedParts = 0
		}
		a.UpdatedAt = time.Now()
		n++
	}
	return n, nil
}

func (s *MemStore) AppendPart(ctx context.Context, id archive.ID, part archive.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	part.UploadedAt = time.Now()
	a.Parts = append(a.Parts, part)
	deduped := archive.DedupeParts(a.Parts)
	a.Parts = deduped

	var bytesSum int64
	for _, p := range deduped {
		bytesSum += p.Size
	}
	a.UploadedBytes = bytesSum
	a.UploadedParts = len(deduped)
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) MutatePart(ctx context.Context, id archive.ID, index int, fn func(*archive.Part) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	for i := range a.Parts {
		if a.Parts[i].Index != index {
			continue
		}
		if err := fn(&a.Parts[i]); err != nil {
			return err
		}
		a.UpdatedAt = time.Now()
		return nil
	}
	return ErrNotFound
}

func (s *MemStore) FinalizeReady(ctx context.Context, id archive.ID, encryptedSize int64, totalParts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	a.EncryptedSize = encryptedSize
	a.TotalParts = totalParts
	a.EncryptionVersion = archive.EncryptionV2Parts
	a.IV = ""
	a.AuthTag = ""
	a.Status = archive.StatusReady
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) RequeueWithRetry(ctx context.Context, id archive.ID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = archive.StatusQueued
	a.RetryCount++
	a.Error = reason
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) SetError(ctx context.Context, id archive.ID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = archive.StatusError
	a.Error = reason
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) IncrementUsedBytes(ctx context.Context, ownerID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[ownerID]
	if !ok {
		u = &archive.User{ID: ownerID}
		s.users[ownerID] = u
	}
	u.UsedBytes += delta
	if u.UsedBytes < 0 {
		u.UsedBytes = 0
	}
	return nil
}

func (s *MemStore) GetUser(ctx context.Context, ownerID string) (*archive.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) ClaimForDeletion(ctx context.Context, now time.Time, retentionCutoff time.Duration) (*archive.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *archive.Archive
	for _, a := range s.archives {
		if a.DeletedAt != nil || a.Deleting {
			continue
		}
		eligible := a.DeleteRequestedAt != nil ||
			(a.TrashedAt != nil && now.Sub(*a.TrashedAt) >= retentionCutoff)
		if !eligible {
			continue
		}
		if best == nil || claimLess(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	best.Deleting = true
	best.UpdatedAt = now
	return cloneArchive(best), nil
}

// claimLess orders by oldest deleteRequestedAt then oldest trashedAt,
// per spec §4.5 Claim.
func claimLess(a, b *archive.Archive) bool {
	if a.DeleteRequestedAt != nil && b.DeleteRequestedAt != nil {
		return a.DeleteRequestedAt.Before(*b.DeleteRequestedAt)
	}
	if a.DeleteRequestedAt != nil {
		return true
	}
	if b.DeleteRequestedAt != nil {
		return false
	}
	if a.TrashedAt != nil && b.TrashedAt != nil {
		return a.TrashedAt.Before(*b.TrashedAt)
	}
	return false
}

func (s *MemStore) SetDeleteTotals(ctx context.Context, id archive.ID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	a.DeleteTotalParts = total
	a.DeletedParts = 0
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) IncrementDeletedParts(ctx context.Context, id archive.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	if a.DeletedParts < a.DeleteTotalParts {
		a.DeletedParts++
	}
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) FinishDeletion(ctx context.Context, id archive.ID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.archives[id]
	if !ok {
		return ErrNotFound
	}
	a.DeletedAt = &now
	a.Parts = nil
	a.Deleting = false
	a.UpdatedAt = now

	if u, ok := s.users[a.OwnerID]; ok {
		u.UsedBytes -= a.OriginalSize
		if u.UsedBytes < 0 {
			u.UsedBytes = 0
		}
	}
	return nil
}

func (s *MemStore) ListReadyWithoutMirrorAssignment(ctx context.Context) (*archive.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.archives {
		if a.Status != archive.StatusReady || a.DeletedAt != nil {
			continue
		}
		for _, p := range a.Parts {
			if p.MirrorProvider == "" {
				return cloneArchive(a), nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) ClaimMirrorPendingPart(ctx context.Context, availableProviders map[archive.Provider]bool) (archive.ID, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.archives {
		if a.Status != archive.StatusReady || a.DeletedAt != nil {
			continue
		}
		for i := range a.Parts {
			p := &a.Parts[i]
			if !p.MirrorPending || p.MirrorProvider == "" {
				continue
			}
			if !availableProviders[p.MirrorProvider] {
				continue
			}
			p.MirrorPending = false
			a.UpdatedAt = time.Now()
			return a.ID, p.Index, true, nil
		}
	}
	return "", 0, false, nil
}

func (s *MemStore) HasQueuedWork(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archives {
		if a.Status == archive.StatusQueued {
			return true, nil
		}
	}
	return false, nil
}
