// Package intake implements the archive core's two creation paths
// (spec §6 "Create archive from uploaded bytes" / "Create archive from
// a streaming upload"): grouping uploaded files into bundles and
// rejecting intake synchronously when it would exceed quota or disk
// capacity.
package intake

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
	"github.com/kenneth/splitstore/internal/store"
	"github.com/kenneth/splitstore/internal/upload"
)

// FileUpload is one already-staged file ready to become (or join) an
// archive: its bytes already live on disk at StagingPath.
type FileUpload struct {
	Filename    string
	StagingPath string
	Size        int64
	RelPath     string // optional relative path, for auto-created sub-folders
}

// CreateRequest is the input to CreateFromUpload.
type CreateRequest struct {
	OwnerID        string
	FolderID       *string
	Files          []FileUpload
	ChunkSizeBytes int
	Priority       int
}

// StreamCreateRequest is the input to CreateFromStream.
type StreamCreateRequest struct {
	OwnerID        string
	FolderID       *string
	Filename       string
	ChunkSizeBytes int
	Priority       int
}

// Core implements the archive-creation half of the archive core's
// external interface (spec §6). The upload pipeline and restore engine
// cover the rest; Core only ever writes queued/processing rows, never
// drives the chunk/encrypt/upload loop itself.
type Core struct {
	Store store.ArchiveStore
	Gate  *upload.DiskGate

	// BundleSingleFileBytes: any single file at or above this size
	// becomes its own archive rather than joining a bundle.
	BundleSingleFileBytes int64
	// BundleMaxBytes: the greedy packer never lets a bundle's total
	// size exceed this ceiling.
	BundleMaxBytes int64

	ChunkSizeBytes int
}

// NewID generates a fresh archive id.
func NewID() archive.ID {
	return archive.ID(uuid.NewString())
}

// CreateFromUpload groups req.Files into archives per the §6 bundling
// rule, rejects the whole request synchronously on quota or disk
// pressure, then inserts one queued archive document per group,
// charging the owner's usedBytes at creation time (spec §6: "the
// batch-upload path" charges at creation, unlike the streaming path
// which charges at finalize — see archive.Archive.UsedBytesCharged).
func (c *Core) CreateFromUpload(ctx context.Context, req CreateRequest) ([]archive.ID, error) {
	var total int64
	for _, f := range req.Files {
		total += f.Size
	}

	if err := c.checkCapacity(ctx, req.OwnerID, total); err != nil {
		return nil, err
	}

	groups := groupIntoBundles(req.Files, c.bundleSingleFileBytes(), c.bundleMaxBytes())

	chunkSize := req.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = c.ChunkSizeBytes
	}

	ids := make([]archive.ID, 0, len(groups))
	for _, group := range groups {
		a := c.newArchiveFromGroup(req.OwnerID, req.FolderID, group, chunkSize, req.Priority)
		if err := c.Store.Insert(ctx, a); err != nil {
			return nil, fmt.Errorf("intake: insert archive: %w", err)
		}
		if a.OriginalSize > 0 {
			if err := c.Store.IncrementUsedBytes(ctx, req.OwnerID, a.OriginalSize); err != nil {
				return nil, fmt.Errorf("intake: charge quota: %w", err)
			}
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// CreateFromStream creates a single archive in processing with an
// empty parts vector (spec §6: "the archive is created immediately in
// processing with an empty parts"). Size is not known up front, so
// only the disk-pressure check runs; the owner's usedBytes is charged
// later, when the stream's driver finalizes the archive to ready.
func (c *Core) CreateFromStream(ctx context.Context, req StreamCreateRequest) (archive.ID, error) {
	if err := c.checkCapacity(ctx, req.OwnerID, 0); err != nil {
		return "", err
	}

	chunkSize := req.ChunkSizeBytes
	if chunkSize <= 0 {
		chunkSize = c.ChunkSizeBytes
	}

	id := NewID()
	a := &archive.Archive{
		ID:             id,
		OwnerID:        req.OwnerID,
		FolderID:       req.FolderID,
		InternalName:   string(id),
		DisplayName:    req.Filename,
		DownloadName:   req.Filename,
		IsBundle:       false,
		Status:         archive.StatusProcessing,
		Parts:          nil,
		ChunkSizeBytes: chunkSize,
		Priority:       req.Priority,
	}
	if err := c.Store.Insert(ctx, a); err != nil {
		return "", fmt.Errorf("intake: insert streaming archive: %w", err)
	}
	return id, nil
}

func (c *Core) bundleSingleFileBytes() int64 {
	if c.BundleSingleFileBytes > 0 {
		return c.BundleSingleFileBytes
	}
	return 1<<63 - 1
}

func (c *Core) bundleMaxBytes() int64 {
	if c.BundleMaxBytes > 0 {
		return c.BundleMaxBytes
	}
	return 1<<63 - 1
}

// checkCapacity rejects intake synchronously per spec §6/§7 "Capacity"
// errors: quota_exceeded if accepting additionalBytes would push the
// owner's usedBytes over quota, disk_full if free disk is below the
// hard limit. Neither is ever auto-retried.
func (c *Core) checkCapacity(ctx context.Context, ownerID string, additionalBytes int64) error {
	if c.Gate != nil {
		allowed, err := c.Gate.AllowLease()
		if err != nil {
			return fmt.Errorf("intake: disk gate: %w", err)
		}
		if !allowed {
			return errclass.ErrDiskFull
		}
	}

	if c.Store == nil {
		return nil
	}
	user, err := c.Store.GetUser(ctx, ownerID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("intake: load owner: %w", err)
	}
	if user.WouldExceedQuota(additionalBytes) {
		return errclass.ErrQuotaExceeded
	}
	return nil
}

// fileGroup is one bundle-to-be: either a single file destined for its
// own archive, or a set of files packed under bundleMaxBytes.
type fileGroup struct {
	files    []FileUpload
	size     int64
	isBundle bool
}

// groupIntoBundles implements the §6 grouping rule: any single file >=
// singleFileThreshold becomes its own (non-bundle) archive; the
// remaining files are greedily packed into bundles whose total never
// exceeds maxBundleBytes. Greedy packing
// processes files in descending size order so large-but-still-under-
// threshold files don't starve later bins, matching the bin-packing
// approach a "greedily pack by size" phrase implies.
func groupIntoBundles(files []FileUpload, singleFileThreshold, maxBundleBytes int64) []fileGroup {
	var solo []FileUpload
	var packable []FileUpload
	for _, f := range files {
		if f.Size >= singleFileThreshold {
			solo = append(solo, f)
		} else {
			packable = append(packable, f)
		}
	}

	sort.SliceStable(packable, func(i, j int) bool { return packable[i].Size > packable[j].Size })

	var groups []fileGroup
	for _, f := range solo {
		groups = append(groups, fileGroup{files: []FileUpload{f}, size: f.Size, isBundle: false})
	}

	var bins []fileGroup
	for _, f := range packable {
		placed := false
		for i := range bins {
			if bins[i].size+f.Size <= maxBundleBytes {
				bins[i].files = append(bins[i].files, f)
				bins[i].size += f.Size
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, fileGroup{files: []FileUpload{f}, size: f.Size})
		}
	}
	for i := range bins {
		bins[i].isBundle = len(bins[i].files) > 1
	}
	groups = append(groups, bins...)
	return groups
}

// newArchiveFromGroup builds the archive document for one group,
// following the same internal/display/download naming split the
// staging and restore packages already expect (archive.File,
// ZipEntryName).
func (c *Core) newArchiveFromGroup(ownerID string, folderID *string, group fileGroup, chunkSize int, priority int) *archive.Archive {
	id := NewID()

	files := make([]archive.File, 0, len(group.files))
	for _, f := range group.files {
		files = append(files, archive.File{
			StagingPath: f.StagingPath,
			InternalName: f.Filename,
			DisplayName:  f.Filename,
			Size:         f.Size,
		})
	}

	displayName := group.files[0].Filename
	downloadName := displayName
	if group.isBundle {
		displayName = fmt.Sprintf("%d files", len(group.files))
		downloadName = string(id) + ".zip"
	}

	return &archive.Archive{
		ID:               id,
		OwnerID:          ownerID,
		FolderID:         folderID,
		InternalName:     string(id),
		DisplayName:      displayName,
		DownloadName:     downloadName,
		IsBundle:         group.isBundle,
		Files:            files,
		Status:           archive.StatusQueued,
		OriginalSize:     group.size,
		ChunkSizeBytes:   chunkSize,
		Priority:         priority,
		UsedBytesCharged: true,
	}
}
