// Package provider defines the storage-backend abstraction that lets the
// upload worker, mirror synchronizer, and restore engine treat webhook
// blob sinks and bot messaging APIs as interchangeable blob stores
// (three-operation contract: uploadBlob / refreshUrl / deleteBlob).
package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
)

// UploadResult is what a successful uploadBlob call returns: enough to
// populate a Part's placement fields.
type UploadResult struct {
	RemoteID  string // opaque id the backend uses to address the blob later
	URL       string // a URL usable to fetch the blob, possibly short-lived
	ExpiresAt *int64 // unix seconds the URL expires at, nil if durable
}

// Provider is the three-operation contract every backend family
// (webhook, bot) implements. Handle identifies which configured account
// or chat/channel within the family to use.
type Provider interface {
	Family() archive.Provider
	UploadBlob(ctx context.Context, handle string, data []byte) (UploadResult, error)
	RefreshURL(ctx context.Context, handle, remoteID string) (UploadResult, error)
	DeleteBlob(ctx context.Context, handle, remoteID string) error
}

// Registry holds the configured instances of both provider families,
// the way the teacher's KnownProviders map holds per-vendor S3 configs,
// generalized from "named S3-compatible vendor" to "named chat/webhook
// backend".
type Registry struct {
	mu        sync.RWMutex
	webhook   Provider
	bot       Provider
	nWebhooks int // count of configured webhook handles, for the selector
}

// NewRegistry builds a registry over the two configured adapters.
func NewRegistry(webhook, bot Provider, nWebhookHandles int) *Registry {
	return &Registry{webhook: webhook, bot: bot, nWebhooks: nWebhookHandles}
}

// For resolves the Provider implementation for a given family.
func (r *Registry) For(family archive.Provider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch family {
	case archive.ProviderWebhook:
		if r.webhook == nil {
			return nil, errclass.ErrNoStorageProvider
		}
		return r.webhook, nil
	case archive.ProviderBot:
		if r.bot == nil {
			return nil, errclass.ErrNoStorageProvider
		}
		return r.bot, nil
	default:
		return nil, fmt.Errorf("provider: unknown family %q", family)
	}
}

// SelectFamily implements the spec §4.1 "index mod nWebhooks" rule: the
// family is webhook whenever any webhook handle is configured and bot
// otherwise, and for webhook the part's index picks which configured
// handle slot, so the same part always resolves to the same backend
// across retries and restarts.
func SelectFamily(index int, nWebhooks int) (family archive.Provider, handleSlot int) {
	if nWebhooks <= 0 {
		return archive.ProviderBot, 0
	}
	return archive.ProviderWebhook, index % nWebhooks
}

// NormalizeHandle mirrors the teacher's endpoint normalization (trim
// surrounding whitespace and one trailing slash; no scheme is added)
// applied to handle strings that happen to be URLs (webhook handles
// are).
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, "/")
	return h
}
