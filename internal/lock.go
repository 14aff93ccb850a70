package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	runLockOwnerFile = "owner.json"
	ownerGrace       = 30 * time.Second
)

// RunLock is an advisory lock next to the state file. It is a directory so
// creation is atomic on every platform.
type RunLock struct {
	lockDir string
}

type runLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireRunLock takes the lock guarding statePath.
func AcquireRunLock(statePath string) (RunLock, error) {
	target := strings.TrimSpace(statePath)
	if target == "" {
		return RunLock{}, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return RunLock{}, fmt.Errorf("create state directory: %w", err)
	}

	lockDir := target + ".lock"
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if !os.IsExist(err) {
			return RunLock{}, fmt.Errorf("acquire run lock %s: %w", lockDir, err)
		}
		if held := lockHolder(lockDir); held != nil {
			return RunLock{}, held
		}
		if err := os.RemoveAll(lockDir); err != nil {
			return RunLock{}, fmt.Errorf("remove stale run lock %s: %w", lockDir, err)
		}
		if err := os.Mkdir(lockDir, 0o755); err != nil {
			if os.IsExist(err) {
				return RunLock{}, fmt.Errorf("%w: %s", ErrRunLocked, lockDir)
			}
			return RunLock{}, fmt.Errorf("acquire run lock %s: %w", lockDir, err)
		}
	}

	owner := runLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := writeJSON(filepath.Join(lockDir, runLockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(lockDir)
		return RunLock{}, fmt.Errorf("write run lock owner: %w", err)
	}

	return RunLock{lockDir: lockDir}, nil
}

// lockHolder returns ErrRunLocked when lockDir belongs to a live run and nil
// when it is stale. A lock is stale when its owner file is missing or
// unreadable past ownerGrace, or names a dead process on this host.
func lockHolder(lockDir string) error {
	var owner runLockOwner
	if err := readJSON(filepath.Join(lockDir, runLockOwnerFile), &owner); err != nil || owner.PID <= 0 {
		info, statErr := os.Stat(lockDir)
		if statErr == nil && time.Since(info.ModTime()) < ownerGrace {
			// The owner may still be writing its file.
			return fmt.Errorf("%w: %s", ErrRunLocked, lockDir)
		}
		return nil
	}
	if owner.Hostname == hostnameOrUnknown() && !processAlive(owner.PID) {
		return nil
	}
	return fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
		ErrRunLocked, lockDir, owner.PID, owner.CreatedAt, owner.Hostname)
}

// Release removes the lock. Releasing a zero RunLock is a no-op.
func (l RunLock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, runLockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
