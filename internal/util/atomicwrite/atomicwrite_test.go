package atomicwrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "self.yaml")

	require.NoError(t, File(p, []byte("a"), 0o600))
	require.NoError(t, File(p, []byte("b"), 0o640))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestYAMLIndent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, YAML(p, map[string]any{"node": map[string]int{"id": 3}}, 0o600))

	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "node:\n    id: 3\n", string(b))
}
