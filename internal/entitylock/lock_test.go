package entitylock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	m := New(path, time.Minute)

	require.NoError(t, m.Acquire("alice", "autonomous run"))

	status, err := m.Status()
	require.NoError(t, err)
	require.NotNil(t, status)
	require.Equal(t, "alice", status.LockedBy)

	err = m.Acquire("bob", "interactive session")
	require.Error(t, err)

	require.NoError(t, m.Release("bob")) // no-op, not the holder
	status, err = m.Status()
	require.NoError(t, err)
	require.NotNil(t, status)

	require.NoError(t, m.Release("alice"))
	status, err = m.Status()
	require.NoError(t, err)
	require.Nil(t, status)
}

func TestExpiredLockMayBeTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	m := New(path, time.Millisecond)
	require.NoError(t, m.Acquire("alice", "ctx"))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, m.Acquire("bob", "took over after expiry"))
	status, err := m.Status()
	require.NoError(t, err)
	require.Equal(t, "bob", status.LockedBy)
}

func TestStatus_NoLockFile(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), ".lock"), time.Minute)
	status, err := m.Status()
	require.NoError(t, err)
	require.Nil(t, status)
}
