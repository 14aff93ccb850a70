package internal

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRunLock_Exclusive(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "data", "state.json")

	lock, err := AcquireRunLock(statePath)
	require.NoError(t, err)

	_, err = AcquireRunLock(statePath)
	require.ErrorIs(t, err, ErrRunLocked)
	assert.Contains(t, err.Error(), "pid=")

	require.NoError(t, lock.Release())
	assert.NoDirExists(t, statePath+".lock")

	again, err := AcquireRunLock(statePath)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireRunLock_ReclaimsDirWithoutOwner(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	lockDir := statePath + ".lock"
	require.NoError(t, os.Mkdir(lockDir, 0o755))

	// A fresh directory may belong to a run that has not written its owner yet.
	_, err := AcquireRunLock(statePath)
	require.ErrorIs(t, err, ErrRunLocked)
	assert.NotContains(t, err.Error(), "pid=")

	old := time.Now().Add(-2 * ownerGrace)
	require.NoError(t, os.Chtimes(lockDir, old, old))
	lock, err := AcquireRunLock(statePath)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireRunLock_ReclaimsCorruptOwner(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	lockDir := statePath + ".lock"
	require.NoError(t, os.Mkdir(lockDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lockDir, runLockOwnerFile), []byte("{not json"), 0o644))
	old := time.Now().Add(-2 * ownerGrace)
	require.NoError(t, os.Chtimes(lockDir, old, old))

	lock, err := AcquireRunLock(statePath)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestAcquireRunLock_ReclaimsDeadOwner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("process liveness is not checked on windows")
	}
	statePath := filepath.Join(t.TempDir(), "state.json")
	lockDir := statePath + ".lock"
	require.NoError(t, os.Mkdir(lockDir, 0o755))
	require.NoError(t, writeJSON(filepath.Join(lockDir, runLockOwnerFile), runLockOwner{
		PID:       1 << 30,
		CreatedAt: "2026-01-01T00:00:00Z",
		Hostname:  hostnameOrUnknown(),
	}))

	lock, err := AcquireRunLock(statePath)
	require.NoError(t, err, "a crashed run leaves its lock behind")

	var owner runLockOwner
	require.NoError(t, readJSON(filepath.Join(lockDir, runLockOwnerFile), &owner))
	assert.Equal(t, os.Getpid(), owner.PID)
	require.NoError(t, lock.Release())
}

func TestAcquireRunLock_KeepsOtherHostOwner(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	lockDir := statePath + ".lock"
	require.NoError(t, os.Mkdir(lockDir, 0o755))
	require.NoError(t, writeJSON(filepath.Join(lockDir, runLockOwnerFile), runLockOwner{
		PID:      1 << 30,
		Hostname: "elsewhere.invalid",
	}))

	_, err := AcquireRunLock(statePath)
	require.ErrorIs(t, err, ErrRunLocked)
	assert.Contains(t, err.Error(), "host=elsewhere.invalid")
}

func TestAcquireRunLock_EmptyPath(t *testing.T) {
	_, err := AcquireRunLock("  ")
	require.Error(t, err)
}

func TestRunLock_ZeroReleaseIsNoop(t *testing.T) {
	assert.NoError(t, RunLock{}.Release())
}
