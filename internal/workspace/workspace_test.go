package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesAllFixedSubdirs(t *testing.T) {
	root := t.TempDir()
	w := New(root)
	require.NoError(t, w.Ensure())

	for _, name := range subdirs {
		info, err := os.Stat(filepath.Join(root, name))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestCycleDirIsNestedUnderTmp(t *testing.T) {
	w := New(t.TempDir())
	dir, err := w.CycleDir(42)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root(), "tmp", "SEQUENCE-42"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestAgentDirIsNestedUnderApp(t *testing.T) {
	w := New(t.TempDir())
	dir, err := w.AgentDir(7)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Root(), "app", "agent-7"), dir)
}

func TestRemoveDeletesWorkspace(t *testing.T) {
	root := t.TempDir()
	w := New(root)
	require.NoError(t, w.Ensure())
	require.NoError(t, w.Remove())

	_, err := os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}
