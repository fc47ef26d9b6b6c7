//go:build windows

package common

import "os"

// Windows has no signal-0 probe; os.Interrupt on FindProcess is the closest
// liveness check available without importing golang.org/x/sys.
var probeSignal = os.Interrupt
