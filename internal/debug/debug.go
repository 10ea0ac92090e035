// Package debug holds the process-wide verbose-diagnostics flag set by the
// cmd/ tools. It exists so deep call sites (the orchestrator's edge-server
// selection in Client.edgeGet) can guard expensive trace output without
// threading a flag through every constructor.
package debug

import (
	"os"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

func init() {
	// Pick the flag up from the environment on load so tests and library
	// embedders get it without going through a main().
	switch {
	case os.Getenv("STEAM_CDN_DEBUG") == "1", os.Getenv("STEAM_CDN_DEBUG") == "true":
		enabled.Store(true)
	case strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug"):
		enabled.Store(true)
	}
}

// Enabled reports whether verbose diagnostics are on.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled turns verbose diagnostics on or off.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// InitFromLogLevel enables diagnostics when the configured log level is
// "debug", unless the environment already decided.
func InitFromLogLevel(level string) {
	if os.Getenv("STEAM_CDN_DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" {
		enabled.Store(strings.EqualFold(level, "debug"))
	}
}
