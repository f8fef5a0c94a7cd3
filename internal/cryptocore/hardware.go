package cryptocore

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HasAESHardwareSupport reports whether the CPU exposes AES instruction
// set acceleration, ported from the teacher's hardware-detection helper
// (same cpu-feature-vector lookups, generalized across the same three
// architectures).
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// HardwareInfo summarizes acceleration availability for diagnostics and
// the hardware_acceleration_enabled gauge.
func HardwareInfo() map[string]interface{} {
	return map[string]interface{}{
		"aes_hardware_support": HasAESHardwareSupport(),
		"architecture":         runtime.GOARCH,
		"goos":                 runtime.GOOS,
		"go_version":           runtime.Version(),
	}
}
