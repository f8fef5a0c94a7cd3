package provider

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/kenneth/splitstore/internal/errclass"
)

// RetryPolicy is the exponential backoff policy used around every
// Provider call (spec §4.1: "transient errors... retried with
// exponential backoff, honoring any provider-supplied retry-after
// hint"). Adapted from the teacher's audit BatchSink retry loop
// (retryBackoff * 2^attempt), generalized to cap at a maximum delay and
// to respect a StatusError's RetryAfter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the spec's implied defaults (a handful of
// attempts, low-second-scale backoff).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 1500 * time.Millisecond, MaxDelay: 15 * time.Second}
}

// Do runs fn, retrying on transient errors per errclass.IsTransient
// until MaxAttempts is exhausted or ctx is cancelled. Terminal errors
// (including stale-URL errors, which the caller handles separately by
// re-resolving the URL rather than retrying blindly) are returned
// immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !errclass.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delayFor(attempt, lastErr)):
		}
	}
	return lastErr
}

func (p RetryPolicy) delayFor(attempt int, err error) time.Duration {
	if hint := retryAfterHint(err); hint > 0 {
		return hint
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// jitter +-10% so many concurrent workers backing off from the same
	// provider outage don't all wake up in lockstep.
	jitter := time.Duration(rand.Int63n(int64(delay) / 5))
	return delay - (delay / 10) + jitter
}

// retryAfterHint extracts a provider-supplied Retry-After duration from
// a StatusError, if present and parseable as seconds.
func retryAfterHint(err error) time.Duration {
	statusErr, ok := err.(*errclass.StatusError)
	if !ok || statusErr.RetryAfter == "" {
		return 0
	}
	secs, parseErr := strconv.Atoi(statusErr.RetryAfter)
	if parseErr != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
