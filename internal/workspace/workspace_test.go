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
	return New(t.TempDir())
}

func TestResolveRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../../etc/passwd")
	assert.Error(t, err)
}

func TestResolveAllowsRootItself(t *testing.T) {
	root := t.TempDir()
	p, err := Resolve(root, ".")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), p)
}

func TestResolveAllowsNestedPath(t *testing.T) {
	root := t.TempDir()
	p, err := Resolve(root, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b", "c.txt"), p)
}

func TestWriteThenReadFile(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("a/b/c.txt", "hello"))

	got, err := w.ReadFile("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestWriteFileRejectsEscape(t *testing.T) {
	w := newTestWorkspace(t)
	err := w.WriteFile("../escape.txt", "x")
	assert.Error(t, err)
}

func TestDeleteRemovesTree(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("a/b.txt", "x"))
	require.NoError(t, w.Delete("a"))

	_, err := os.Stat(filepath.Join(w.Root, "a"))
	assert.True(t, os.IsNotExist(err))
}

func TestListFilesExcludesIgnoredDirs(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("src/index.js", "x"))
	require.NoError(t, w.WriteFile("node_modules/pkg/index.js", "x"))
	require.NoError(t, w.WriteFile(".git/HEAD", "x"))
	require.NoError(t, w.WriteFile("dist/bundle.js", "x"))

	files, err := w.ListFiles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"src/index.js"}, files)
}

func TestListFilesExcludesTsbuildinfo(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("tsconfig.tsbuildinfo", "x"))
	require.NoError(t, w.WriteFile("index.ts", "x"))

	files, err := w.ListFiles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.ts"}, files)
}

func TestTreeOrdersDirectoriesBeforeFilesAndAlphabetically(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("b.txt", "x"))
	require.NoError(t, w.WriteFile("a.txt", "x"))
	require.NoError(t, w.WriteFile("zdir/nested.txt", "x"))

	tree, err := w.Tree()
	require.NoError(t, err)

	lines := []string{
		"zdir",
		"a.txt",
		"b.txt",
	}
	lastIdx := -1
	for _, want := range lines {
		idx := indexOfSubstring(tree, want)
		require.GreaterOrEqual(t, idx, 0, "expected %q in tree output:\n%s", want, tree)
		assert.Greater(t, idx, lastIdx, "expected %q to appear after previous entries", want)
		lastIdx = idx
	}
}

func TestTreeExcludesIgnoredEntries(t *testing.T) {
	w := newTestWorkspace(t)
	require.NoError(t, w.WriteFile("node_modules/pkg/index.js", "x"))
	require.NoError(t, w.WriteFile("src/index.js", "x"))

	tree, err := w.Tree()
	require.NoError(t, err)
	assert.NotContains(t, tree, "node_modules")
	assert.Contains(t, tree, "src")
}

func indexOfSubstring(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
