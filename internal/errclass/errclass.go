// Package errclass defines the error surface of the archive core and
// classifies provider/network failures as transient or terminal.
package errclass

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors surfaced at the archive-core boundary (spec §6, §7).
var (
	ErrQuotaExceeded     = errors.New("quota_exceeded")
	ErrDiskFull          = errors.New("disk_full")
	ErrNotReady          = errors.New("not_ready")
	ErrNotFound          = errors.New("not_found")
	ErrFileNotFound      = errors.New("file_not_found")
	ErrForbidden         = errors.New("forbidden")
	ErrRangeNotSupported = errors.New("range_not_supported")
	ErrRestoreFailed     = errors.New("restore_failed")
	ErrNoStorageProvider = errors.New("no_storage_provider_configured")
	ErrMissingFile       = errors.New("missing_file")
	ErrBadIndex          = errors.New("bad_index")
)

// PartHashMismatch reports that a part's ciphertext hash did not match
// what was recorded at upload time.
type PartHashMismatch struct{ Index int }

func (e *PartHashMismatch) Error() string {
	return fmt.Sprintf("part_hash_mismatch:%d", e.Index)
}

// PartCryptoMissing reports that a part is missing its IV/auth-tag or
// failed GCM verification.
type PartCryptoMissing struct{ Index int }

func (e *PartCryptoMissing) Error() string {
	return fmt.Sprintf("part_crypto_missing:%d", e.Index)
}

// StatusError wraps an HTTP-style status code returned by a provider.
type StatusError struct {
	StatusCode int
	RetryAfter string // raw header/JSON hint, if any
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsStaleURL reports whether err indicates the download URL has expired
// or is otherwise no longer authorized — the §4.4 self-repair trigger.
func IsStaleURL(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case 401, 403, 404:
			return true
		}
	}
	return false
}

// IsTransient classifies an error as retryable per spec §4.1: network
// drops, HTTP 429, HTTP 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 429 || se.StatusCode >= 500 {
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"econnreset", "etimedout", "enotfound", "eai_again",
		"connection reset", "i/o timeout", "no such host",
		"socket hang up", "broken pipe", "connection refused",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
