package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/kenneth/splitstore/internal/store"
)

// Recovery drives the two restart-time housekeeping steps from spec
// §4.3: a one-time unconditional reset of every processing archive at
// process startup, and a recurring reset of archives whose processing
// has gone stale (no progress in staleAfter).
type Recovery struct {
	Store      store.ArchiveStore
	StaleAfter time.Duration
}

// RunStartupRecovery resets every processing archive back to queued.
// Callers must invoke this at most once per process lifetime — it does
// not distinguish "stuck since a crash" from "actively being worked on
// by another process", which is safe only because this reference
// deployment assumes a single worker process owns the store.
func (r *Recovery) RunStartupRecovery(ctx context.Context) (int, error) {
	n, err := r.Store.ResetAllProcessingUnconditional(ctx)
	if err != nil {
		return 0, fmt.Errorf("upload: startup recovery: %w", err)
	}
	return n, nil
}

// RunStaleReset resets processing archives whose updatedAt is older
// than StaleAfter (default 30 minutes per spec §4.3), the recurring
// half of the reaper that catches a worker that died mid-archive
// without crashing the whole process.
func (r *Recovery) RunStaleReset(ctx context.Context, now time.Time) (int, error) {
	n, err := r.Store.ResetStaleProcessing(ctx, now.Add(-r.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("upload: stale reset: %w", err)
	}
	return n, nil
}
