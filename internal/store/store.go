// Package store abstracts the metadata document store (spec §6: "a
// durable document store with atomic single-document updates and
// indexed queries"). The store itself is an external collaborator out
// of scope for this repo; this package defines the contract the core
// needs and ships an in-memory reference implementation used by tests
// and by single-process deployments.
package store

import (
	"context"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
)

// ArchiveStore is the set of atomic operations the core performs on the
// archives collection. Every method is a single-document mutation;
// there is no cross-archive transaction (spec §5).
type ArchiveStore interface {
	// Get returns a copy of the archive, or ErrNotFound.
	Get(ctx context.Context, id archive.ID) (*archive.Archive, error)

	// Insert creates a new archive document.
	Insert(ctx context.Context, a *archive.Archive) error

	// LeaseNextQueued atomically finds the highest-priority queued
	// archive (ties broken by oldest createdAt), sets status=processing,
	// clears error, and returns it. Returns ErrNotFound if none queued
	// (spec §4.3 Leasing).
	LeaseNextQueued(ctx context.Context) (*archive.Archive, error)

	// ResetStaleProcessing resets every processing archive whose
	// updatedAt is older than olderThan back to queued, zeroing
	// uploadedBytes/uploadedParts if no parts are committed yet (spec
	// §4.3 Stale reaper). Returns the count reset.
	ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int, error)

	// ResetAllProcessingUnconditional resets every processing archive to
	// queued, regardless of age (spec §4.3 Startup recovery). Callers
	// must ensure this runs at most once per process lifetime.
	ResetAllProcessingUnconditional(ctx context.Context) (int, error)

	// AppendPart atomically appends (or replaces, if index already
	// present — invariant 1) a part record and recomputes
	// uploadedBytes/uploadedParts from the deduplicated set (spec §4.3
	// step 3, invariant 2).
	AppendPart(ctx context.Context, id archive.ID, part archive.Part) error

	// MutatePart atomically loads the part at index, applies fn, and
	// persists the result. Used for URL self-repair and mirror-claim
	// CAS-style updates. fn returning an error aborts the mutation.
	MutatePart(ctx context.Context, id archive.ID, index int, fn func(*archive.Part) error) error

	// FinalizeReady sets encryptedSize, totalParts, encryptionVersion=2,
	// clears legacy iv/authTag, and transitions status to ready (spec
	// §4.3 step 6).
	FinalizeReady(ctx context.Context, id archive.ID, encryptedSize int64, totalParts int) error

	// RequeueWithRetry returns the archive to queued and increments
	// retryCount (spec §4.3 Error policy, transient path).
	RequeueWithRetry(ctx context.Context, id archive.ID, reason string) error

	// SetError sets status=error with the given message (terminal path).
	SetError(ctx context.Context, id archive.ID, reason string) error

	// IncrementUsedBytes atomically adjusts a user's usedBytes by delta
	// (positive on upload completion, negative on delete).
	IncrementUsedBytes(ctx context.Context, ownerID string, delta int64) error

	// GetUser returns a copy of the user record.
	GetUser(ctx context.Context, ownerID string) (*archive.User, error)

	// ClaimForDeletion atomically finds one archive matching spec §4.5's
	// claim predicate, sets deleting=true, and returns it.
	ClaimForDeletion(ctx context.Context, now time.Time, retentionCutoff time.Duration) (*archive.Archive, error)

	// SetDeleteTotals fixes deleteTotalParts/deletedParts at the start
	// of a deletion pass (invariant 8).
	SetDeleteTotals(ctx context.Context, id archive.ID, total int) error

	// IncrementDeletedParts atomically bumps deletedParts by one.
	IncrementDeletedParts(ctx context.Context, id archive.ID) error

	// FinishDeletion sets deletedAt, strips parts, clears deleting, and
	// refunds the owner's usedBytes by originalSize (spec §4.5 Finish).
	FinishDeletion(ctx context.Context, id archive.ID, now time.Time) error

	// ListReadyWithoutMirrorAssignment returns one ready archive whose
	// parts lack a mirrorProvider assignment (spec §4.6 Prepare), or
	// ErrNotFound if there is none.
	ListReadyWithoutMirrorAssignment(ctx context.Context) (*archive.Archive, error)

	// ClaimMirrorPendingPart atomically finds a ready archive with a
	// part whose mirrorPending=true and mirror provider available, sets
	// that part's mirrorPending=false (guarded CAS), and returns the
	// archive id and part index (spec §4.6 Sync claim step).
	ClaimMirrorPendingPart(ctx context.Context, availableProviders map[archive.Provider]bool) (archive.ID, int, bool, error)

	// HasQueuedWork reports whether any archive is currently queued
	// (used by the admin readiness check).
	HasQueuedWork(ctx context.Context) (bool, error)
}

// ErrNotFound is returned by Get and the claim operations when nothing
// matches.
var ErrNotFound = archiveNotFoundError{}

type archiveNotFoundError struct{}

func (archiveNotFoundError) Error() string { return "archive: not found" }
