// Package webhook implements the "webhook" provider family: a bulk blob
// sink addressed by a plain POST URL, the way a Discord channel webhook
// or a generic file-drop endpoint works. Adapted from the teacher's
// audit.HTTPSink (same http.Client-with-timeout, status-code-to-error
// translation), generalized from "fire an audit event" to "upload,
// refresh, and delete a binary blob".
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
	"github.com/kenneth/splitstore/internal/provider"
)

// Adapter uploads blobs to a set of configured webhook URLs (handles),
// selected by the caller per provider.SelectFamily.
type Adapter struct {
	client  *http.Client
	handles map[string]string // handle name -> base URL
}

// New builds a webhook adapter over the given handle registry (handle
// name -> base webhook URL).
func New(handles map[string]string) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 30 * time.Second},
		handles: handles,
	}
}

func (a *Adapter) Family() archive.Provider { return archive.ProviderWebhook }

type uploadResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ExpiresAtTS int64  `json:"expiresAt,omitempty"`
}

// UploadBlob POSTs the ciphertext part as a raw
// application/octet-stream request body.
func (a *Adapter) UploadBlob(ctx context.Context, handle string, data []byte) (provider.UploadResult, error) {
	base, ok := a.handles[handle]
	if !ok {
		return provider.UploadResult{}, fmt.Errorf("webhook: unknown handle %q", handle)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.NormalizeHandle(base), bytes.NewReader(data))
	if err != nil {
		return provider.UploadResult{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.UploadResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return provider.UploadResult{}, statusErrorFrom(resp)
	}

	var out uploadResponse
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &out); err != nil {
		return provider.UploadResult{}, fmt.Errorf("webhook: decode upload response: %w", err)
	}

	res := provider.UploadResult{RemoteID: out.ID, URL: out.URL}
	if out.ExpiresAtTS > 0 {
		res.ExpiresAt = &out.ExpiresAtTS
	}
	return res, nil
}

// RefreshURL re-fetches a fresh URL for an already-uploaded blob, used
// when a stored URL has expired or returned 401/403/404 (spec §4.4
// self-repair).
func (a *Adapter) RefreshURL(ctx context.Context, handle, remoteID string) (provider.UploadResult, error) {
	base, ok := a.handles[handle]
	if !ok {
		return provider.UploadResult{}, fmt.Errorf("webhook: unknown handle %q", handle)
	}

	url := fmt.Sprintf("%s/attachments/%s", provider.NormalizeHandle(base), remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return provider.UploadResult{}, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.UploadResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return provider.UploadResult{}, statusErrorFrom(resp)
	}

	var out uploadResponse
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &out); err != nil {
		return provider.UploadResult{}, fmt.Errorf("webhook: decode refresh response: %w", err)
	}
	res := provider.UploadResult{RemoteID: out.ID, URL: out.URL}
	if out.ExpiresAtTS > 0 {
		res.ExpiresAt = &out.ExpiresAtTS
	}
	return res, nil
}

// DeleteBlob deletes a previously uploaded blob. Best-effort: the
// reaper (§4.5) treats a deletion failure as non-fatal and logs it.
func (a *Adapter) DeleteBlob(ctx context.Context, handle, remoteID string) error {
	base, ok := a.handles[handle]
	if !ok {
		return fmt.Errorf("webhook: unknown handle %q", handle)
	}

	url := fmt.Sprintf("%s/attachments/%s", provider.NormalizeHandle(base), remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil // already gone
	}
	if resp.StatusCode >= 400 {
		return statusErrorFrom(resp)
	}
	return nil
}

func statusErrorFrom(resp *http.Response) *errclass.StatusError {
	return &errclass.StatusError{
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfterSeconds(resp),
		Err:        fmt.Errorf("webhook: backend returned %s", resp.Status),
	}
}

func retryAfterSeconds(resp *http.Response) string {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return ""
	}
	if _, err := strconv.Atoi(v); err != nil {
		return ""
	}
	return v
}
