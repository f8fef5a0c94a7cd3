package upload

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/kenneth/splitstore/internal/archive"
	"github.com/kenneth/splitstore/internal/cryptocore"
	"github.com/kenneth/splitstore/internal/provider"
	"github.com/kenneth/splitstore/internal/store"
)

// chunkJob is one unit of chunk+encrypt+upload+commit work, modeled
// after the teacher's cryptoJob in internal/crypto/chunked.go, but
// carrying a part index and owning its own upload/commit step instead
// of just an encrypt step.
type chunkJob struct {
	index     int
	plaintext []byte
}

// Pipeline drives the chunk -> encrypt -> upload -> commit fan-out for
// one archive. Concurrency follows the teacher's bounded-backpressure
// channel pattern: the producer blocks once maxInFlight jobs are
// outstanding, rather than reading the whole file into memory.
type Pipeline struct {
	Store       store.ArchiveStore
	Providers   *provider.Registry
	Key         cryptocore.Key
	Concurrency int
	NWebhooks   int
	BufferPool  *cryptocore.BufferPool
}

func (p *Pipeline) maxInFlight() int {
	if p.Concurrency*3 > 10 {
		return p.Concurrency * 3
	}
	return 10
}

// Run chunks r, encrypting and uploading each chunk whose index is not
// already in present (parts already committed from a prior partial
// run), committing each one via Store.AppendPart as it completes (spec
// §4.3 step 3). present is checked per-index rather than assumed to
// form a dense prefix, since part commit order is not guaranteed (spec
// §5). It returns once every chunk through EOF has been accounted for,
// or the first terminal error encountered.
func (p *Pipeline) Run(ctx context.Context, id archive.ID, r io.ReadSeeker, chunkSize int, present map[int]bool) error {
	jobs := make(chan chunkJob, p.maxInFlight())
	results := make(chan error, p.Concurrency)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < p.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := p.processOne(ctx, id, job); err != nil {
					select {
					case results <- err:
					default:
					}
					cancel()
					return
				}
			}
		}()
	}

	produceErr := p.produce(ctx, r, chunkSize, present, jobs)
	close(jobs)
	wg.Wait()

	select {
	case err := <-results:
		return err
	default:
	}
	return produceErr
}

// produce reads r chunk by chunk from the start, seeking to each
// chunk's own offset so a gap in present (e.g. {0, 2} committed but not
// 1) is still re-read and re-dispatched rather than skipped over (spec
// §4.3 step 2: "if i is already present in parts, skip it" — evaluated
// per index, not as a single resume cursor).
func (p *Pipeline) produce(ctx context.Context, r io.ReadSeeker, chunkSize int, present map[int]bool, jobs chan<- chunkJob) error {
	for index := 0; ; index++ {
		offset := int64(index) * int64(chunkSize)
		if _, err := r.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("upload: seek to chunk %d: %w", index, err)
		}

		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(r, buf)
		if n > 0 && !present[index] {
			job := chunkJob{index: index, plaintext: buf[:n]}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("upload: read chunk %d: %w", index, err)
		}
	}
}

// handleFor resolves the handle string a given family uses for
// index's slot: a webhook picks among its configured handles by index
// mod NWebhooks (spec §4.1), a bot always uses its single configured
// handle.
func (p *Pipeline) handleFor(family archive.Provider, index int) string {
	if family != archive.ProviderWebhook {
		return "0"
	}
	if p.NWebhooks <= 0 {
		return "0"
	}
	return strconv.Itoa(index % p.NWebhooks)
}

func (p *Pipeline) processOne(ctx context.Context, id archive.ID, job chunkJob) error {
	enc, err := cryptocore.EncryptPart(p.Key, job.plaintext)
	if err != nil {
		return fmt.Errorf("upload: encrypt part %d: %w", job.index, err)
	}

	family, _ := provider.SelectFamily(job.index, p.NWebhooks)
	handle := p.handleFor(family, job.index)

	mirrorFamily := family.Other()
	mirrorHandle := p.handleFor(mirrorFamily, job.index)
	_, mirrorErr := p.Providers.For(mirrorFamily)
	mirrorAvailable := mirrorErr == nil

	var primary, mirror provider.PlacementResult
	if mirrorAvailable {
		primary, mirror = provider.UploadMirrored(ctx, p.Providers, family, handle, mirrorFamily, mirrorHandle, enc.Ciphertext)
	} else {
		res, err := p.uploadSingle(ctx, family, handle, enc.Ciphertext)
		primary = provider.PlacementResult{Family: family, Result: res, Err: err}
	}
	if mirrorAvailable && primary.Err != nil && mirror.Err == nil {
		// Only the opposite side succeeded: it becomes the part's primary
		// placement and the failed side is left as the pending mirror.
		primary, mirror = mirror, primary
		handle, mirrorHandle = mirrorHandle, handle
		mirrorFamily = mirror.Family
	}
	if primary.Err != nil {
		return fmt.Errorf("upload: upload part %d: %w", job.index, primary.Err)
	}

	now := time.Now()
	part := archive.Part{
		Index:      job.index,
		Size:       int64(len(enc.Ciphertext)),
		PlainSize:  int64(len(job.plaintext)),
		Hash:       enc.Hash,
		IV:         enc.IV,
		AuthTag:    enc.AuthTag,
		Provider:   primary.Family,
		URL:        primary.Result.URL,
		MessageID:  primary.Result.RemoteID,
		UploadedAt: now,
	}
	if primary.Family == archive.ProviderWebhook {
		part.WebhookID = handle
	}

	if mirrorAvailable {
		// spec §4.1/§4.3 step 3: a successful mirror updates the part's
		// mirror fields directly; a failed mirror leaves mirrorPending
		// true with the error, to be repaired later by the mirror
		// synchronizer (§4.6).
		if mirror.Err == nil {
			part.MirrorProvider = mirror.Family
			part.MirrorURL = mirror.Result.URL
			part.MirrorMessageID = mirror.Result.RemoteID
			part.MirrorUploadedAt = now
			if mirror.Family == archive.ProviderWebhook {
				part.MirrorWebhookID = mirrorHandle
			}
		} else {
			part.MirrorProvider = mirrorFamily
			part.MirrorPending = true
			part.MirrorError = mirror.Err.Error()
		}
	}

	if err := p.Store.AppendPart(ctx, id, part); err != nil {
		return fmt.Errorf("upload: commit part %d: %w", job.index, err)
	}
	return nil
}

func (p *Pipeline) uploadSingle(ctx context.Context, family archive.Provider, handle string, data []byte) (provider.UploadResult, error) {
	prov, err := p.Providers.For(family)
	if err != nil {
		return provider.UploadResult{}, fmt.Errorf("resolve provider: %w", err)
	}

	policy := provider.DefaultRetryPolicy()
	var result provider.UploadResult
	err = policy.Do(ctx, func(attempt int) error {
		res, uploadErr := prov.UploadBlob(ctx, handle, data)
		if uploadErr != nil {
			return uploadErr
		}
		result = res
		return nil
	})
	return result, err
}
