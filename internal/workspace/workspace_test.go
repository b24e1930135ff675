package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	logPath := filepath.Join(root, "mirror.log")
	require.NoError(t, os.Mkdir(src, 0o755))
	require.NoError(t, os.Mkdir(dst, 0o755))
	require.NoError(t, os.WriteFile(logPath, nil, 0o644))

	w, err := NewWorkspace(src, dst, logPath)
	require.NoError(t, err)
	return w
}

func TestNewWorkspace_ResolvesCanonicalPaths(t *testing.T) {
	w := newTestWorkspace(t)

	assert.True(t, filepath.IsAbs(w.Source))
	assert.True(t, filepath.IsAbs(w.Replica))
	assert.True(t, filepath.IsAbs(w.LogPath))

	real, err := filepath.EvalSymlinks(w.Source)
	require.NoError(t, err)
	assert.Equal(t, real, w.Source)
}

func TestWorkspaceLocking_SingleInstance(t *testing.T) {
	w1 := newTestWorkspace(t)
	w2, err := NewWorkspace(w1.Source, w1.Replica, w1.LogPath)
	require.NoError(t, err)

	require.NoError(t, w1.Lock())

	err = w2.Lock()
	require.ErrorIs(t, err, ErrWorkspaceLocked)

	lockPath := LockFilePath(w1.Replica)
	assert.FileExists(t, lockPath)

	require.NoError(t, w1.Unlock())
	_, statErr := os.Stat(lockPath)
	require.ErrorIs(t, statErr, os.ErrNotExist)

	require.NoError(t, w2.Lock())
	t.Cleanup(func() { _ = w2.Unlock() })
}

func TestWorkspaceUnlock_WithoutLockIsNoop(t *testing.T) {
	w := newTestWorkspace(t)
	assert.NoError(t, w.Unlock())
}

func TestLockFilePath_PerReplica(t *testing.T) {
	a := LockFilePath("/data/replica-a")
	b := LockFilePath("/data/replica-b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, LockFilePath("/data/replica-a"))
	assert.Equal(t, os.TempDir(), filepath.Dir(a))
}
