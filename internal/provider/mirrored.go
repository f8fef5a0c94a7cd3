package provider

import (
	"context"

	"github.com/kenneth/splitstore/internal/archive"
)

// PlacementResult is one side's outcome from a mirrored upload.
type PlacementResult struct {
	Family archive.Provider
	Result UploadResult
	Err    error
}

// UploadMirrored uploads data to the primary family/handle and,
// concurrently, to the opposite family/handle. Each side is retried
// independently per DefaultRetryPolicy, the same backoff a lone upload
// gets. Each side's outcome is returned under the role it was requested
// in, whatever order the two finish, so if both succeed the one
// requested as primary keeps that role, for deterministic provider
// selection across retries. When only the mirror side succeeds, it is
// still returned as mirrorResultOut; the caller decides whether to
// promote it to the part's primary placement (upload.Pipeline does).
func UploadMirrored(ctx context.Context, registry *Registry, primary archive.Provider, primaryHandle string, mirror archive.Provider, mirrorHandle string, data []byte) (primaryResult, mirrorResultOut PlacementResult) {
	type out struct {
		family archive.Provider
		res    UploadResult
		err    error
	}
	ch := make(chan out, 2)

	upload := func(family archive.Provider, handle string) {
		res, err := uploadWithRetry(ctx, registry, family, handle, data)
		ch <- out{family: family, res: res, err: err}
	}

	go upload(primary, primaryHandle)
	go upload(mirror, mirrorHandle)

	first := <-ch
	second := <-ch

	toPlacement := func(o out) PlacementResult {
		return PlacementResult{Family: o.family, Result: o.res, Err: o.err}
	}

	if first.family == primary {
		return toPlacement(first), toPlacement(second)
	}
	return toPlacement(second), toPlacement(first)
}

func uploadWithRetry(ctx context.Context, registry *Registry, family archive.Provider, handle string, data []byte) (UploadResult, error) {
	p, err := registry.For(family)
	if err != nil {
		return UploadResult{}, err
	}

	var res UploadResult
	err = DefaultRetryPolicy().Do(ctx, func(attempt int) error {
		r, uploadErr := p.UploadBlob(ctx, handle, data)
		if uploadErr != nil {
			return uploadErr
		}
		res = r
		return nil
	})
	return res, err
}
