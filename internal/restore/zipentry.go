package restore

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/kenneth/splitstore/internal/errclass"
)

// extractZipEntryFromBytes finds the first zip entry whose name starts
// with namePrefix (the "${index}_" prefix written by the upload
// pipeline's staging step) and returns its decompressed bytes.
func extractZipEntryFromBytes(data []byte, namePrefix string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("restore: open bundle zip: %w", err)
	}

	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, namePrefix) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("restore: open zip entry %s: %w", f.Name, err)
		}
		defer rc.Close()
		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("restore: read zip entry %s: %w", f.Name, err)
		}
		return out, nil
	}
	return nil, errclass.ErrFileNotFound
}
