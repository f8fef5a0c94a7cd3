// Package bot implements the "bot" provider family: a messaging-API
// backend (a chat bot account posting into a channel/chat it is a
// member of) rather than a bulk blob-sink webhook. The wire shape
// differs from webhook (JSON envelope with an attachment URL, a
// message id to address it by, explicit per-call auth token) but the
// three-operation contract is identical, so the upload worker and
// restore engine never need to know which family they're talking to.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
	"github.com/kenneth/splitstore/internal/provider"
)

// Handle identifies one configured bot account: its API base and token.
type Handle struct {
	APIBase string
	Token   string
	ChatID  string
}

// Adapter uploads blobs as messages sent by a bot account into a
// configured chat/channel.
type Adapter struct {
	client  *http.Client
	handles map[string]Handle
}

// New builds a bot adapter over the given handle registry.
func New(handles map[string]Handle) *Adapter {
	return &Adapter{
		client:  &http.Client{Timeout: 60 * time.Second},
		handles: handles,
	}
}

func (a *Adapter) Family() archive.Provider { return archive.ProviderBot }

type sendDocumentResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
		Document  struct {
			FileID string `json:"file_id"`
		} `json:"document"`
	} `json:"result"`
}

type fileURLResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// UploadBlob sends the ciphertext part as a document attachment to the
// handle's configured chat.
func (a *Adapter) UploadBlob(ctx context.Context, handleName string, data []byte) (provider.UploadResult, error) {
	h, ok := a.handles[handleName]
	if !ok {
		return provider.UploadResult{}, fmt.Errorf("bot: unknown handle %q", handleName)
	}

	body := &bytes.Buffer{}
	boundary := "splitstorepart"
	fmt.Fprintf(body, "--%s\r\nContent-Disposition: form-data; name=\"chat_id\"\r\n\r\n%s\r\n", boundary, h.ChatID)
	fmt.Fprintf(body, "--%s\r\nContent-Disposition: form-data; name=\"document\"; filename=\"part.bin\"\r\nContent-Type: application/octet-stream\r\n\r\n", boundary)
	body.Write(data)
	fmt.Fprintf(body, "\r\n--%s--\r\n", boundary)

	url := fmt.Sprintf("%s/bot%s/sendDocument", provider.NormalizeHandle(h.APIBase), h.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return provider.UploadResult{}, err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.UploadResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return provider.UploadResult{}, &errclass.StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("bot: sendDocument returned %s", resp.Status)}
	}

	var out sendDocumentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return provider.UploadResult{}, fmt.Errorf("bot: decode sendDocument response: %w", err)
	}
	if !out.OK {
		return provider.UploadResult{}, fmt.Errorf("bot: sendDocument not ok")
	}

	remoteID := fmt.Sprintf("%d:%s", out.Result.MessageID, out.Result.Document.FileID)
	fileURL, err := a.resolveFileURL(ctx, h, out.Result.Document.FileID)
	if err != nil {
		return provider.UploadResult{}, err
	}
	return provider.UploadResult{RemoteID: remoteID, URL: fileURL}, nil
}

// RefreshURL re-resolves the download URL for an already-sent message,
// used on the §4.4 self-repair path when a cached file URL expires.
func (a *Adapter) RefreshURL(ctx context.Context, handleName, remoteID string) (provider.UploadResult, error) {
	h, ok := a.handles[handleName]
	if !ok {
		return provider.UploadResult{}, fmt.Errorf("bot: unknown handle %q", handleName)
	}

	var messageID int64
	var fileID string
	if _, err := fmt.Sscanf(remoteID, "%d:%s", &messageID, &fileID); err != nil {
		return provider.UploadResult{}, fmt.Errorf("bot: malformed remote id %q: %w", remoteID, err)
	}

	fileURL, err := a.resolveFileURL(ctx, h, fileID)
	if err != nil {
		return provider.UploadResult{}, err
	}
	return provider.UploadResult{RemoteID: remoteID, URL: fileURL}, nil
}

func (a *Adapter) resolveFileURL(ctx context.Context, h Handle, fileID string) (string, error) {
	url := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", provider.NormalizeHandle(h.APIBase), h.Token, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &errclass.StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("bot: getFile returned %s", resp.Status)}
	}

	var out fileURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("bot: decode getFile response: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("bot: getFile not ok")
	}

	return fmt.Sprintf("%s/file/bot%s/%s", provider.NormalizeHandle(h.APIBase), h.Token, out.Result.FilePath), nil
}

// DeleteBlob deletes the message carrying the blob. Best-effort per
// spec §4.5: a delete failure here is logged, not fatal.
func (a *Adapter) DeleteBlob(ctx context.Context, handleName, remoteID string) error {
	h, ok := a.handles[handleName]
	if !ok {
		return fmt.Errorf("bot: unknown handle %q", handleName)
	}

	var messageID int64
	var fileID string
	if _, err := fmt.Sscanf(remoteID, "%d:%s", &messageID, &fileID); err != nil {
		return fmt.Errorf("bot: malformed remote id %q: %w", remoteID, err)
	}

	payload, _ := json.Marshal(map[string]interface{}{"chat_id": h.ChatID, "message_id": messageID})
	url := fmt.Sprintf("%s/bot%s/deleteMessage", provider.NormalizeHandle(h.APIBase), h.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 400 {
		return &errclass.StatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("bot: deleteMessage returned %s", resp.Status)}
	}
	return nil
}
