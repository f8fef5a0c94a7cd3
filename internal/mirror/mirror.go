// Package mirror implements the mirror synchronizer (spec §4.6): a
// two-phase background process that assigns every ready archive's
// parts an opposite-family mirror placement, then fills those
// placements in one at a time.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/audit"
	"github.com/kenneth/splitstore/internal/provider"
	"github.com/kenneth/splitstore/internal/store"
)

// Synchronizer drives Prepare and Sync, one archive/part at a time,
// the way upload.Worker and reaper.Reaper each drive one unit of work
// per call so the scheduler can interleave them fairly (spec §4.7).
type Synchronizer struct {
	Store     store.ArchiveStore
	Providers *provider.Registry
	Fetch     func(ctx context.Context, url string) ([]byte, error)
	Log       *logrus.Entry
	Audit     audit.Logger // optional
}

// availableFamilies reports which provider families are actually
// configured, so Prepare/Sync never assign a mirror to a family with
// no backing adapter.
func (s *Synchronizer) availableFamilies() map[archive.Provider]bool {
	out := map[archive.Provider]bool{}
	for _, f := range []archive.Provider{archive.ProviderWebhook, archive.ProviderBot} {
		if _, err := s.Providers.For(f); err == nil {
			out[f] = true
		}
	}
	return out
}

// Prepare finds one ready archive with at least one part lacking a
// mirror assignment and assigns each such part's mirrorProvider to the
// opposite family, marking it mirrorPending (spec §4.6 Prepare).
// Returns false if there was nothing to prepare.
func (s *Synchronizer) Prepare(ctx context.Context) (bool, error) {
	a, err := s.Store.ListReadyWithoutMirrorAssignment(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	available := s.availableFamilies()
	prepared := 0
	for _, p := range archive.DedupeParts(a.Parts) {
		if p.MirrorProvider != "" {
			continue
		}
		mirrorFamily := p.Provider.Other()
		if !available[mirrorFamily] {
			continue // no backend configured for the opposite family yet
		}
		index := p.Index
		err := s.Store.MutatePart(ctx, a.ID, index, func(part *archive.Part) error {
			if part.MirrorProvider != "" {
				return nil
			}
			part.MirrorProvider = mirrorFamily
			part.MirrorPending = true
			return nil
		})
		if err != nil {
			return true, fmt.Errorf("mirror: assign part %d: %w", index, err)
		}
		prepared++
	}

	s.Log.WithField("archive", a.ID).WithField("partsPrepared", prepared).Info("mirror: prepare pass complete")
	return prepared > 0, nil
}

// Sync claims one part with mirrorPending=true and fills its mirror
// placement: download the primary ciphertext, re-upload it to the
// assigned mirror family, and persist the result (spec §4.6 Sync).
// Returns false if there was nothing pending.
func (s *Synchronizer) Sync(ctx context.Context) (bool, error) {
	start := time.Now()
	available := s.availableFamilies()
	id, index, ok, err := s.Store.ClaimMirrorPendingPart(ctx, available)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	a, err := s.Store.Get(ctx, id)
	if err != nil {
		return true, err
	}

	var target *archive.Part
	for i := range a.Parts {
		if a.Parts[i].Index == index {
			target = &a.Parts[i]
			break
		}
	}
	if target == nil {
		return true, fmt.Errorf("mirror: claimed part %d not found in archive %s", index, id)
	}

	ciphertext, err := provider.FetchWithRepair(ctx, s.Providers, s.Store, id, *target, s.Fetch)
	if err != nil {
		s.markMirrorError(ctx, id, index, err)
		s.logMirror(id, index, target.MirrorProvider, false, err, start)
		return true, err
	}

	prov, err := s.Providers.For(target.MirrorProvider)
	if err != nil {
		s.markMirrorError(ctx, id, index, err)
		s.logMirror(id, index, target.MirrorProvider, false, err, start)
		return true, err
	}

	handle := mirrorHandle(*target)
	res, err := prov.UploadBlob(ctx, handle, ciphertext)
	if err != nil {
		s.markMirrorError(ctx, id, index, err)
		s.logMirror(id, index, target.MirrorProvider, false, err, start)
		return true, err
	}

	err = s.Store.MutatePart(ctx, id, index, func(p *archive.Part) error {
		p.MirrorURL = res.URL
		p.MirrorMessageID = res.RemoteID
		if target.MirrorProvider == archive.ProviderWebhook {
			p.MirrorWebhookID = handle
		}
		p.MirrorError = ""
		return nil
	})
	if err != nil {
		s.logMirror(id, index, target.MirrorProvider, false, err, start)
		return true, fmt.Errorf("mirror: persist mirror placement for part %d: %w", index, err)
	}

	s.logMirror(id, index, target.MirrorProvider, true, nil, start)
	s.Log.WithField("archive", id).WithField("part", index).Info("mirror: sync complete")
	return true, nil
}

func (s *Synchronizer) logMirror(id archive.ID, index int, family archive.Provider, success bool, err error, start time.Time) {
	if s.Audit != nil {
		s.Audit.LogMirror(string(id), index, string(family), success, err, time.Since(start))
	}
}

func (s *Synchronizer) markMirrorError(ctx context.Context, id archive.ID, index int, cause error) {
	_ = s.Store.MutatePart(ctx, id, index, func(p *archive.Part) error {
		p.MirrorError = cause.Error()
		p.MirrorPending = true // leave it claimable for a future retry
		return nil
	})
}

func mirrorHandle(p archive.Part) string {
	if p.WebhookID != "" {
		return p.WebhookID
	}
	return "0"
}
