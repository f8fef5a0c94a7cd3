// Package upload implements the archive upload pipeline: leasing a
// queued archive, staging its plaintext, chunking and encrypting it,
// uploading each part to its selected provider, and committing parts
// atomically (spec §4.3).
package upload

// DiskGate reports whether the local staging disk has enough headroom
// to accept more work, per the soft/hard GiB thresholds (spec §4.3:
// "disk-pressure gating"). Below the hard limit, leasing stops
// entirely; below the soft limit, the worker logs a warning but keeps
// going, since it is already committed to the archive it leased.
type DiskGate struct {
	root      string
	softLimit float64 // GiB
	hardLimit float64 // GiB
}

// NewDiskGate builds a gate over root, measuring free space with the
// platform statfs call in diskgate_linux.go/diskgate_other.go.
func NewDiskGate(root string, softLimitGB, hardLimitGB float64) *DiskGate {
	return &DiskGate{root: root, softLimit: softLimitGB, hardLimit: hardLimitGB}
}

// FreeGB returns free space at root in gibibytes.
func (g *DiskGate) FreeGB() (float64, error) {
	bytes, err := freeBytes(g.root)
	if err != nil {
		return 0, err
	}
	return float64(bytes) / (1024 * 1024 * 1024), nil
}

// AllowLease reports whether a new archive may be leased: free space
// must be above the hard limit.
func (g *DiskGate) AllowLease() (bool, error) {
	free, err := g.FreeGB()
	if err != nil {
		return false, err
	}
	return free >= g.hardLimit, nil
}

// UnderSoftLimit reports whether free space has dropped below the soft
// threshold, a warning-only condition for work already in flight.
func (g *DiskGate) UnderSoftLimit() (bool, error) {
	free, err := g.FreeGB()
	if err != nil {
		return false, err
	}
	return free < g.softLimit, nil
}
