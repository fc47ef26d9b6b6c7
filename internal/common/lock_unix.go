//go:build !windows

package common

import "syscall"

var probeSignal = syscall.Signal(0)
