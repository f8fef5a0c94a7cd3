package restore

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/errclass"
)

// byteRange is an inclusive plaintext byte range.
type byteRange struct {
	start, end int64 // inclusive
}

// parseRangeHeader parses a single-range "bytes=start-end" header
// against a known total size, ported from the teacher's
// ParseHTTPRangeHeader (internal/crypto/range_optimization.go), which
// already handles suffix ranges ("-N") and open-ended ranges
// ("N-").
func parseRangeHeader(header string, total int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, errclass.ErrRangeNotSupported
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, errclass.ErrRangeNotSupported // multi-range not supported
	}

	var start, end int64
	if strings.HasPrefix(spec, "-") {
		var suffix int64
		if _, err := fmt.Sscanf(spec, "-%d", &suffix); err != nil {
			return byteRange{}, errclass.ErrRangeNotSupported
		}
		start = total - suffix
		if start < 0 {
			start = 0
		}
		end = total - 1
	} else {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 {
			return byteRange{}, errclass.ErrRangeNotSupported
		}
		s, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return byteRange{}, errclass.ErrRangeNotSupported
		}
		start = s
		if parts[1] == "" {
			end = total - 1
		} else {
			e, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return byteRange{}, errclass.ErrRangeNotSupported
			}
			end = e
		}
	}

	if start < 0 || start >= total || end < start {
		return byteRange{}, errclass.ErrRangeNotSupported
	}
	if end >= total {
		end = total - 1
	}
	return byteRange{start: start, end: end}, nil
}

// StreamRange serves a byte range of a v2, non-bundle archive (spec
// §4.4: "byte-range serving restricted to v2 single-file archives").
// Out-of-range requests get 416; satisfiable ones get 206 with an
// exact Content-Range.
func (e *Engine) StreamRange(ctx context.Context, w http.ResponseWriter, a *archive.Archive, rangeHeader string) error {
	if a.Status != archive.StatusReady {
		return errclass.ErrNotReady
	}
	if a.IsBundle || a.EncryptionVersion != archive.EncryptionV2Parts {
		return errclass.ErrRangeNotSupported
	}

	rng, err := parseRangeHeader(rangeHeader, a.OriginalSize)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", a.OriginalSize))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, a.OriginalSize))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.end-rng.start+1, 10))
	w.Header().Set("ETag", ETag(a))
	w.WriteHeader(http.StatusPartialContent)

	parts := archive.DedupeParts(a.Parts)
	if len(parts) == 0 {
		return errclass.ErrMissingFile
	}
	chunkSize := int64(a.ChunkSizeBytes)
	if chunkSize <= 0 {
		return fmt.Errorf("restore: archive %s has zero chunk size", a.ID)
	}

	startPart := int(rng.start / chunkSize)
	endPart := int(rng.end / chunkSize)

	for i := startPart; i <= endPart && i < len(parts); i++ {
		p := parts[i]
		plain, err := e.fetchPart(ctx, a.ID, p)
		if err != nil {
			return err
		}

		partStart := int64(i) * chunkSize
		loOffset := int64(0)
		if i == startPart {
			loOffset = rng.start - partStart
		}
		hiOffset := int64(len(plain))
		if i == endPart {
			hiOffset = rng.end - partStart + 1
			if hiOffset > int64(len(plain)) {
				hiOffset = int64(len(plain))
			}
		}
		if loOffset < 0 || loOffset > int64(len(plain)) {
			continue
		}
		if _, err := w.Write(plain[loOffset:hiOffset]); err != nil {
			return err
		}
	}
	return nil
}
