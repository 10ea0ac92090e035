package cdncrypto

import (
	"runtime"
	"testing"
)

func TestHasAESHardwareSupport_MatchesArch(t *testing.T) {
	got := HasAESHardwareSupport()
	switch runtime.GOARCH {
	case "amd64", "386", "arm64", "s390x":
		// Feature flags can't be mocked; just pin that the call is stable.
		if got != HasAESHardwareSupport() {
			t.Fatal("expected a stable answer across calls")
		}
	default:
		if got {
			t.Fatalf("unexpected AES support reported on %s", runtime.GOARCH)
		}
	}
}

func TestAccelerationInfo(t *testing.T) {
	info := AccelerationInfo()

	for _, field := range []string{"aes_hardware_support", "architecture", "goos", "go_version"} {
		if _, ok := info[field]; !ok {
			t.Errorf("AccelerationInfo() missing field %s", field)
		}
	}
	if info["architecture"] != runtime.GOARCH {
		t.Errorf("architecture = %v, want %s", info["architecture"], runtime.GOARCH)
	}
	if info["aes_hardware_support"] != HasAESHardwareSupport() {
		t.Error("aes_hardware_support should mirror HasAESHardwareSupport")
	}
}
