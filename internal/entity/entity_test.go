package entity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen_ProvisionsLayoutAndToken(t *testing.T) {
	root := t.TempDir()
	e, err := Open("Lyra", root)
	require.NoError(t, err)
	require.DirExists(t, e.DataDir())
	require.DirExists(t, e.CrystalsCurrentDir())
	require.DirExists(t, e.CrystalsArchiveDir())
	require.DirExists(t, e.WordPhotosDir())
	require.FileExists(t, e.TokenPath())
	require.Equal(t, "lyra", e.GroupID())
}

func TestOpen_ReusesExistingToken(t *testing.T) {
	root := t.TempDir()
	e1, err := Open("lyra", root)
	require.NoError(t, err)

	e2, err := Open("lyra", root)
	require.NoError(t, err)

	require.True(t, e2.VerifyToken(e1.token))
}

func TestVerifyToken_RejectsWrongToken(t *testing.T) {
	e, err := Open("lyra", t.TempDir())
	require.NoError(t, err)
	require.False(t, e.VerifyToken("not-the-token"))
}

func TestPaths_AreUnderRoot(t *testing.T) {
	root := t.TempDir()
	e, err := Open("lyra", root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "data"), e.DataDir())
	require.Equal(t, filepath.Join(root, ".lock"), e.LockPath())
}
