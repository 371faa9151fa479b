package lockregistry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_CreatesLockFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New("watcher")
	require.NoError(t, err)

	require.NoError(t, r.Acquire(dir))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)

	var rec Record
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "watcher", rec.WorkerName)
}

func TestAcquire_RefusesWhileHeldByLiveOwner(t *testing.T) {
	dir := t.TempDir()
	r, err := New("watcher")
	require.NoError(t, err)

	require.NoError(t, r.Acquire(dir))
	err = r.Acquire(dir)
	require.ErrorIs(t, err, ErrHeld)
}

func TestAcquire_RemovesStaleLockFromDeadPID(t *testing.T) {
	dir := t.TempDir()
	hostname, _ := os.Hostname()

	rec := Record{PID: 999999, Timestamp: 0, WorkerName: "old-worker", Hostname: hostname}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0o644))

	r, err := New("watcher")
	require.NoError(t, err)
	require.NoError(t, r.Acquire(dir))

	got, err := readLock(dir)
	require.NoError(t, err)
	assert.Equal(t, "watcher", got.WorkerName)
}

func TestAcquire_TreatsForeignHostnameAsHeld(t *testing.T) {
	dir := t.TempDir()
	rec := Record{PID: 999999, Timestamp: 0, WorkerName: "remote-worker", Hostname: "some-other-host"}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), data, 0o644))

	r, err := New("watcher")
	require.NoError(t, err)
	err = r.Acquire(dir)
	require.ErrorIs(t, err, ErrHeld)
}

func TestRelease_TolerantOfMissingFile(t *testing.T) {
	dir := t.TempDir()
	r, err := New("watcher")
	require.NoError(t, err)
	require.NoError(t, r.Release(dir))
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := New("watcher")
	require.NoError(t, err)

	require.NoError(t, r.Acquire(dir))
	require.NoError(t, r.Release(dir))
	require.NoError(t, r.Acquire(dir))
}
