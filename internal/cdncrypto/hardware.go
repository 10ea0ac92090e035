package cdncrypto

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// HasAESHardwareSupport reports whether the CPU exposes AES instructions.
// The chunk pipeline's CBC and single-block ECB decrypts go through the
// stdlib cipher, which uses those instructions automatically when present,
// so this is purely diagnostic: cmd/mirror surfaces it as a gauge so an
// operator can spot a mirror that fell back to software AES.
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

// AccelerationInfo summarizes the decrypt path for cmd/mirror's startup log.
func AccelerationInfo() map[string]interface{} {
	return map[string]interface{}{
		"aes_hardware_support": HasAESHardwareSupport(),
		"architecture":         runtime.GOARCH,
		"goos":                 runtime.GOOS,
		"go_version":           runtime.Version(),
	}
}
