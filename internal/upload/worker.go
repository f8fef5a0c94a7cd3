package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/audit"
	"github.com/kenneth/splitstore/internal/errclass"
	"github.com/kenneth/splitstore/internal/store"
)

// Worker processes one queued archive at a time when driven by
// ProcessNext, the way the scheduler's tick (spec §4.7) calls in.
type Worker struct {
	Store     store.ArchiveStore
	Pipeline  *Pipeline
	Gate      *DiskGate
	CacheRoot string
	Log       *logrus.Entry
	Audit     audit.Logger // optional
}

// ProcessNext leases the next queued archive (if any) and drives it
// through staging, chunking, and finalization. Returns (false, nil) if
// there was nothing queued, so the scheduler can move on to the next
// tick step (spec §4.7: "skipped if a higher step found work" is
// evaluated by the caller using this return value in reverse: finding
// work here means the caller should NOT fall through further).
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if w.Gate != nil {
		if allowed, err := w.Gate.AllowLease(); err == nil && !allowed {
			w.Log.Warn("upload: disk below hard limit, skipping lease")
			return false, nil
		}
	}

	a, err := w.Store.LeaseNextQueued(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("upload: lease next queued: %w", err)
	}

	if w.Gate != nil {
		if under, err := w.Gate.UnderSoftLimit(); err == nil && under {
			w.Log.WithField("archive", a.ID).Warn("upload: disk below soft limit, continuing with leased archive")
		}
	}

	if err := w.process(ctx, a); err != nil {
		w.Log.WithError(err).WithField("archive", a.ID).Error("upload: processing failed")
		return true, err
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, a *archive.Archive) error {
	log := w.Log.WithField("archive", a.ID)
	start := time.Now()

	staged, err := BuildStagedReader(a, w.CacheRoot)
	if err != nil {
		return w.fail(ctx, a.ID, a.OwnerID, start, err)
	}
	defer staged.Close()

	present := archive.PresentIndices(a.Parts)
	log.WithField("resumedParts", len(present)).Info("upload: starting pipeline")

	if err := w.Pipeline.Run(ctx, a.ID, staged, a.ChunkSizeBytes, present); err != nil {
		return w.fail(ctx, a.ID, a.OwnerID, start, err)
	}

	totalParts := ExpectedPartCount(staged.Size, a.ChunkSizeBytes)
	if err := w.Store.FinalizeReady(ctx, a.ID, staged.Size, totalParts); err != nil {
		return fmt.Errorf("upload: finalize ready: %w", err)
	}

	if !a.UsedBytesCharged {
		if err := w.Store.IncrementUsedBytes(ctx, a.OwnerID, a.OriginalSize); err != nil {
			log.WithError(err).Warn("upload: failed to increment owner usedBytes")
		}
	}

	if w.Audit != nil {
		w.Audit.LogUpload(string(a.ID), a.OwnerID, true, nil, time.Since(start), map[string]interface{}{"parts": totalParts})
	}

	log.Info("upload: archive ready")
	return nil
}

// fail classifies err and either requeues (transient) or marks the
// archive errored (terminal), per spec §4.3's error policy.
func (w *Worker) fail(ctx context.Context, id archive.ID, ownerID string, start time.Time, err error) error {
	if w.Audit != nil {
		w.Audit.LogUpload(string(id), ownerID, false, err, time.Since(start), nil)
	}
	if errclass.IsTransient(err) {
		if reqErr := w.Store.RequeueWithRetry(ctx, id, err.Error()); reqErr != nil {
			return fmt.Errorf("upload: requeue after transient error: %w", reqErr)
		}
		return err
	}
	if setErr := w.Store.SetError(ctx, id, err.Error()); setErr != nil {
		return fmt.Errorf("upload: set terminal error: %w", setErr)
	}
	return err
}

// ExpectedPartCount implements the spec's exact ceil(S/C) rule
// (invariant 3). A 0-byte file has zero parts (spec §8 boundary
// behaviors: "one archive with 0 parts and originalSize = 0").
func ExpectedPartCount(size int64, chunkSize int) int {
	if size == 0 {
		return 0
	}
	return int((size + int64(chunkSize) - 1) / int64(chunkSize))
}
