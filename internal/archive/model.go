// Package archive defines the storage unit (Archive) and its ordered
// Part vector, per spec §3.
package archive

import "time"

// ID identifies an archive document.
type ID string

// Status is the archive lifecycle state (spec §3 Lifecycle).
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// EncryptionVersion 2 is the current per-part AES-GCM format; version 1
// is the legacy whole-file format, readable only.
const (
	EncryptionV1Legacy = 1
	EncryptionV2Parts  = 2
)

// Provider identifies which backend family holds a part.
type Provider string

const (
	ProviderWebhook Provider = "webhook"
	ProviderBot     Provider = "bot"
)

// Other returns the opposite family, used for mirror placement (§4.1,
// §4.6: webhook <-> bot).
func (p Provider) Other() Provider {
	if p == ProviderWebhook {
		return ProviderBot
	}
	return ProviderWebhook
}

// Part is one ciphertext fragment of an archive (spec §3 Part).
type Part struct {
	Index int `json:"index"`

	Size      int64  `json:"size"`                // ciphertext bytes
	PlainSize int64  `json:"plainSize,omitempty"`  // plaintext bytes contributed; 0 => treat as Size (open question §9)
	Hash      string `json:"hash"`                 // hex SHA-256 of ciphertext
	IV        string `json:"iv"`                   // base64, per-part GCM nonce
	AuthTag   string `json:"authTag"`               // base64, GCM tag

	Provider  Provider `json:"provider"`
	URL       string   `json:"url"`
	MessageID string   `json:"messageId"`
	WebhookID string   `json:"webhookId,omitempty"`

	MirrorProvider  Provider `json:"mirrorProvider,omitempty"`
	MirrorURL       string   `json:"mirrorUrl,omitempty"`
	MirrorMessageID string   `json:"mirrorMessageId,omitempty"`
	MirrorWebhookID string   `json:"mirrorWebhookId,omitempty"`
	MirrorPending   bool     `json:"mirrorPending,omitempty"`
	MirrorError     string   `json:"mirrorError,omitempty"`

	UploadedAt       time.Time `json:"uploadedAt,omitempty"`
	MirrorUploadedAt time.Time `json:"mirrorUploadedAt,omitempty"`
}

// EffectivePlainSize applies the §9 open-question default: a missing
// PlainSize is treated as equal to Size (safe for v2, where ciphertext
// and plaintext are byte-aligned under GCM — the tag is stored
// separately in AuthTag).
func (p Part) EffectivePlainSize() int64 {
	if p.PlainSize > 0 {
		return p.PlainSize
	}
	return p.Size
}

// HasMirror reports whether the part has a completed mirror copy:
// MirrorProvider is set, MirrorPending is false, and both MirrorURL and
// MirrorMessageID are populated.
func (p Part) HasMirror() bool {
	return p.MirrorProvider != "" && !p.MirrorPending && p.MirrorURL != "" && p.MirrorMessageID != ""
}

// File is one entry inside an archive's Files list.
type File struct {
	StagingPath     string     `json:"stagingPath"`
	InternalName    string     `json:"internalName"`
	DisplayName     string     `json:"displayName"`
	Size            int64      `json:"size"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	Kind            string     `json:"kind,omitempty"`
	DownloadCount   int64      `json:"downloadCount,omitempty"`
	PreviewCount    int64      `json:"previewCount,omitempty"`
	ThumbnailMeta   []byte     `json:"thumbnailMeta,omitempty"`
}

// Archive is the unit of storage (spec §3).
type Archive struct {
	ID       ID      `json:"id"`
	OwnerID  string  `json:"ownerId"`
	FolderID *string `json:"folderId,omitempty"`

	InternalName string `json:"internalName"`
	DisplayName  string `json:"displayName"`
	DownloadName string `json:"downloadName"`
	IsBundle     bool   `json:"isBundle"`
	Files        []File `json:"files"`

	Status            Status     `json:"status"`
	TrashedAt         *time.Time `json:"trashedAt,omitempty"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
	DeleteRequestedAt *time.Time `json:"deleteRequestedAt,omitempty"`
	Deleting          bool       `json:"deleting"`
	RetryCount        int        `json:"retryCount"`
	Error             string     `json:"error,omitempty"`

	OriginalSize    int64 `json:"originalSize"`
	EncryptedSize   int64 `json:"encryptedSize"`
	UploadedBytes   int64 `json:"uploadedBytes"`
	UploadedParts   int   `json:"uploadedParts"`
	TotalParts      int   `json:"totalParts"`
	DeleteTotalParts int  `json:"deleteTotalParts"`
	DeletedParts    int   `json:"deletedParts"`

	EncryptionVersion int    `json:"encryptionVersion"`
	IV                string `json:"iv,omitempty"`      // v1 legacy only
	AuthTag           string `json:"authTag,omitempty"` // v1 legacy only

	ChunkSizeBytes int `json:"chunkSizeBytes"`

	StagingDir string `json:"stagingDir"`

	Parts []Part `json:"parts"`

	// UsedBytesCharged records whether the owner's usedBytes has already
	// been incremented for this archive, so the charge happens exactly
	// once: at creation for the batch-upload path (size known upfront)
	// or at stream completion for the streaming path (spec §4.3 step 6).
	UsedBytesCharged bool `json:"usedBytesCharged,omitempty"`

	Priority         int  `json:"priority"`
	PriorityOverride bool `json:"priorityOverride"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DedupeParts collapses duplicate part records with the same index to
// the most recently appended one (invariant 1) and returns them sorted
// by index (restore engine's iteration order, §4.4).
func DedupeParts(parts []Part) []Part {
	byIndex := make(map[int]Part, len(parts))
	order := make([]int, 0, len(parts))
	for _, p := range parts {
		if _, exists := byIndex[p.Index]; !exists {
			order = append(order, p.Index)
		}
		byIndex[p.Index] = p // last write wins: "newest" duplicate
	}
	out := make([]Part, 0, len(order))
	for _, idx := range order {
		out = append(out, byIndex[idx])
	}
	sortPartsByIndex(out)
	return out
}

func sortPartsByIndex(parts []Part) {
	for i := 1; i < len(parts); i++ {
		j := i
		for j > 0 && parts[j-1].Index > parts[j].Index {
			parts[j-1], parts[j] = parts[j], parts[j-1]
			j--
		}
	}
}

// UniquePartCount returns the count of distinct part indices (invariant
// 2, and the §4.5 deleteTotalParts fixing rule).
func UniquePartCount(parts []Part) int {
	return len(DedupeParts(parts))
}

// PresentIndices returns the set of part indices already committed, so
// a resumed upload can skip each one individually rather than assuming
// committed parts form a dense prefix (spec §5: "part commit order is
// not guaranteed"; §4.3 step 2: "if i is already present in parts,
// skip it").
func PresentIndices(parts []Part) map[int]bool {
	out := make(map[int]bool, len(parts))
	for _, p := range parts {
		out[p.Index] = true
	}
	return out
}
