package upload

import (
	"archive/zip"
	"fmt"
	"io"
	"os"

	"github.com/kenneth/splitstore/internal/archive"
)

// StagedReader is a seekable view over an archive's plaintext content:
// the single file's bytes directly, or a zip of every live file for a
// bundle (spec §4.3 Staging: "zip for bundles, direct read for single
// files").
type StagedReader struct {
	io.ReadSeeker
	Size int64

	closers []io.Closer
}

// Close releases any underlying file handles or temp files.
func (s *StagedReader) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// BuildStagedReader prepares a's plaintext for chunking. Bundles are
// zipped into a scratch file under cacheRoot so the result is seekable
// and resumable across a worker restart; single files are opened
// directly from their staging path.
func BuildStagedReader(a *archive.Archive, cacheRoot string) (*StagedReader, error) {
	if !a.IsBundle {
		return stageSingleFile(a)
	}
	return stageBundle(a, cacheRoot)
}

func stageSingleFile(a *archive.Archive) (*StagedReader, error) {
	if len(a.Files) != 1 {
		return nil, fmt.Errorf("upload: non-bundle archive %s has %d files, want 1", a.ID, len(a.Files))
	}
	f := a.Files[0]
	fh, err := os.Open(f.StagingPath)
	if err != nil {
		return nil, fmt.Errorf("upload: open staging file: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	return &StagedReader{ReadSeeker: fh, Size: info.Size(), closers: []io.Closer{fh}}, nil
}

// zipCachePath is where a bundle's zip scratch file lives, named by
// archive id so a resumed worker finds the same file instead of
// rebuilding it (spec §4.3: "resumable across restarts").
func zipCachePath(cacheRoot string, id archive.ID) string {
	return fmt.Sprintf("%s/%s.bundle.zip", cacheRoot, id)
}

func stageBundle(a *archive.Archive, cacheRoot string) (*StagedReader, error) {
	path := zipCachePath(cacheRoot, a.ID)

	if info, err := os.Stat(path); err == nil {
		fh, openErr := os.Open(path)
		if openErr == nil {
			return &StagedReader{ReadSeeker: fh, Size: info.Size(), closers: []io.Closer{fh}}, nil
		}
	}

	if err := os.MkdirAll(cacheRoot, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create cache dir: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("upload: create bundle zip: %w", err)
	}

	zw := zip.NewWriter(out)
	for i, f := range a.Files {
		if f.DeletedAt != nil {
			continue // deleted entries are excluded from the bundle (spec §3)
		}
		if err := addZipEntry(zw, i, f); err != nil {
			zw.Close()
			out.Close()
			os.Remove(path)
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("upload: finalize bundle zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, err
	}
	return &StagedReader{ReadSeeker: fh, Size: info.Size(), closers: []io.Closer{fh}}, nil
}

// ZipEntryName builds the named zip entry format the restore engine
// parses back apart: "${index}_${safeName}" (spec §4.4).
func ZipEntryName(index int, displayName string) string {
	return fmt.Sprintf("%d_%s", index, safeZipName(displayName))
}

func safeZipName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "file"
	}
	return string(out)
}

func addZipEntry(zw *zip.Writer, index int, f archive.File) error {
	src, err := os.Open(f.StagingPath)
	if err != nil {
		return fmt.Errorf("upload: open bundle member %s: %w", f.DisplayName, err)
	}
	defer src.Close()

	name := ZipEntryName(index, f.DisplayName)
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("upload: create zip entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("upload: write zip entry %s: %w", name, err)
	}
	return nil
}
