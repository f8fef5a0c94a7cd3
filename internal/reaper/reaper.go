// Package reaper implements the deletion reaper (spec §4.5): it claims
// one archive whose delete is requested or whose trash retention has
// expired, best-effort deletes every part from its backend, and
// refunds the owner's quota on completion.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/audit"
	"github.com/kenneth/splitstore/internal/provider"
	"github.com/kenneth/splitstore/internal/store"
)

// Reaper drives one deletion pass at a time, the way the upload
// Worker drives one archive at a time — both are "claim one unit of
// work, process it fully" loops over the same document store.
type Reaper struct {
	Store           store.ArchiveStore
	Providers       *provider.Registry
	RetentionWindow time.Duration
	Log             *logrus.Entry
	Audit           audit.Logger // optional
}

// ProcessNext claims and fully deletes one eligible archive, if any.
// Returns (false, nil) when there is nothing to claim, mirroring
// upload.Worker.ProcessNext so the scheduler can treat every step
// uniformly (spec §4.7).
func (r *Reaper) ProcessNext(ctx context.Context, now time.Time) (bool, error) {
	a, err := r.Store.ClaimForDeletion(ctx, now, r.RetentionWindow)
	if err != nil {
		if err == store.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	log := r.Log.WithField("archive", a.ID)

	total := archive.UniquePartCount(a.Parts)
	if err := r.Store.SetDeleteTotals(ctx, a.ID, total); err != nil {
		return true, err
	}

	for _, p := range archive.DedupeParts(a.Parts) {
		r.deletePart(ctx, log, a.ID, p)
		if err := r.Store.IncrementDeletedParts(ctx, a.ID); err != nil {
			log.WithError(err).Warn("reaper: failed to record deleted-part progress")
		}
	}

	if err := r.Store.FinishDeletion(ctx, a.ID, now); err != nil {
		if r.Audit != nil {
			r.Audit.LogDelete(string(a.ID), a.OwnerID, false, err)
		}
		return true, err
	}
	if r.Audit != nil {
		r.Audit.LogDelete(string(a.ID), a.OwnerID, true, nil)
	}
	log.WithField("totalParts", total).Info("reaper: archive deleted")
	return true, nil
}

// deletePart deletes a part's primary and, if present, mirror
// placement. Failures are logged and swallowed (spec §4.5:
// "per-part best-effort delete with progress logging") — a
// provider-side delete failure must never block the reaper from
// finishing and refunding quota.
func (r *Reaper) deletePart(ctx context.Context, log *logrus.Entry, id archive.ID, p archive.Part) {
	if prov, err := r.Providers.For(p.Provider); err == nil {
		if err := prov.DeleteBlob(ctx, handleFor(p, p.Provider), p.MessageID); err != nil {
			log.WithError(err).WithField("part", p.Index).Warn("reaper: primary delete failed")
		}
	} else {
		log.WithError(err).WithField("part", p.Index).Warn("reaper: no provider for primary delete")
	}

	if p.HasMirror() {
		if prov, err := r.Providers.For(p.MirrorProvider); err == nil {
			if err := prov.DeleteBlob(ctx, handleFor(p, p.MirrorProvider), p.MirrorMessageID); err != nil {
				log.WithError(err).WithField("part", p.Index).Warn("reaper: mirror delete failed")
			}
		} else {
			log.WithError(err).WithField("part", p.Index).Warn("reaper: no provider for mirror delete")
		}
	}
}

func handleFor(p archive.Part, family archive.Provider) string {
	if family == archive.ProviderWebhook {
		if family == p.Provider {
			return p.WebhookID
		}
		return p.MirrorWebhookID
	}
	return ""
}
