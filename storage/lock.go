package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "abbas.lock"

// LockedError is returned when another live process holds the data
// directory.
type LockedError struct {
	PID int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("another abbas instance is already running (PID %d)", e.PID)
}

// InstanceLock marks the data directory as in use by this process.
type InstanceLock struct {
	path string
}

// AcquireInstanceLock writes <dataDir>/abbas.lock with the current PID. A
// lock left by a process that no longer runs is replaced.
func AcquireInstanceLock(dataDir string) (*InstanceLock, error) {
	path := filepath.Join(dataDir, lockFileName)

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
			}
			return &InstanceLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		pid, running := lockHolder(path)
		if running {
			return nil, &LockedError{PID: pid}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to acquire lock file %s", path)
}

// Release removes the lock file.
func (l *InstanceLock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// lockHolder reads the PID in the lock file and reports whether that
// process is alive. Unreadable locks count as stale.
func lockHolder(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, true
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return pid, false
	}
	// signal 0 checks for existence without delivering anything
	if err := p.Signal(syscall.Signal(0)); err != nil && !errors.Is(err, syscall.EPERM) {
		return pid, false
	}
	return pid, true
}
