package syntax

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireNode(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node not available in PATH")
	}
}

func TestValidatePassesOnValidJS(t *testing.T) {
	requireNode(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("console.log(1);\n"), 0644))

	v := NewJSValidator()
	result, err := v.Validate(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateFailsOnInvalidJS(t *testing.T) {
	requireNode(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("function( {\n"), 0644))

	v := NewJSValidator()
	result, err := v.Validate(context.Background(), root)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "main.js", result.File)
	assert.NotEmpty(t, result.Error)
}

func TestValidateSkipsNodeModules(t *testing.T) {
	requireNode(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "pkg", "broken.js"), []byte("function( {\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("console.log(1);\n"), 0644))

	v := NewJSValidator()
	result, err := v.Validate(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateFailsOpenWhenRootMissing(t *testing.T) {
	v := NewJSValidator()
	result, err := v.Validate(context.Background(), "/nonexistent/path/for/ralph/test")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateFailsOpenWhenNodeUnavailable(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.js"), []byte("function( {\n"), 0644))

	v := &JSValidator{NodePath: ""}
	result, err := v.Validate(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}
