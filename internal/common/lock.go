package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrAnotherInstance indicates the state directory is locked by a live process.
var ErrAnotherInstance = errors.New("another site2rag instance is running")

// ProcessLock guards a state directory against concurrent instances.
// The lock is a pid file created with O_EXCL; a stale file left by a dead
// process is reclaimed.
type ProcessLock struct {
	path string
}

// AcquireLock takes the process lock for the given state directory.
func AcquireLock(stateDir string) (*ProcessLock, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	path := filepath.Join(stateDir, "lock")

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &ProcessLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		// Lock file exists; reclaim it if the owning process is gone.
		if pid, ok := readLockPID(path); ok && processAlive(pid) {
			return nil, fmt.Errorf("%w (pid %d)", ErrAnotherInstance, pid)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, ErrAnotherInstance
		}
	}

	return nil, ErrAnotherInstance
}

// Release removes the lock file. Safe to call multiple times.
func (l *ProcessLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readLockPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering a signal.
	return proc.Signal(probeSignal) == nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
