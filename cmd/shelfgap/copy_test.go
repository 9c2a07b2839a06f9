package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfgap/shelfgap/internal/checkpoint"
)

// copyFixture builds a lake with one missing file, a target already holding a
// file of the same name, and an artifact recording the missing file.
func copyFixture(t *testing.T) (artifact, lake, target string) {
	t.Helper()
	lake = t.TempDir()
	target = t.TempDir()

	src := filepath.Join(lake, "book.epub")
	require.NoError(t, os.WriteFile(src, []byte("incoming"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(target, "book.epub"), []byte("already here"), 0o644))

	artifact = filepath.Join(t.TempDir(), "missing.csv")
	w, err := checkpoint.NewWriter(artifact, 1)
	require.NoError(t, err)
	require.NoError(t, w.Append(checkpoint.Row{
		Path:   src,
		Size:   int64(len("incoming")),
		Full:   "fb",
		Status: checkpoint.StatusMissing,
	}))
	require.NoError(t, w.Close())
	return artifact, lake, target
}

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shelfgap"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "shelfgap", "config.toml"), []byte(content), 0o644))
}

func TestCopyCmd_ConfigFileConflictDefault(t *testing.T) {
	artifact, lake, target := copyFixture(t)
	writeConfigFile(t, "[defaults]\non_conflict = \"skip\"\nworkers = 1\n")

	quiet := true
	cmd := newCopyCmd(&quiet)
	cmd.SetArgs([]string{artifact, lake, target})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(target, "book.epub"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))

	_, err = os.Stat(filepath.Join(target, "book_1.epub"))
	assert.True(t, os.IsNotExist(err), "skip default must not create a renamed copy")
}

func TestCopyCmd_FlagOverridesConfigFile(t *testing.T) {
	artifact, lake, target := copyFixture(t)
	writeConfigFile(t, "[defaults]\non_conflict = \"skip\"\n")

	quiet := true
	cmd := newCopyCmd(&quiet)
	cmd.SetArgs([]string{"--on-conflict", "rename", artifact, lake, target})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(filepath.Join(target, "book.epub"))
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))

	data, err = os.ReadFile(filepath.Join(target, "book_1.epub"))
	require.NoError(t, err)
	assert.Equal(t, "incoming", string(data))
}

func TestCopyCmd_InvalidConfigConflictMode(t *testing.T) {
	artifact, lake, target := copyFixture(t)
	writeConfigFile(t, "[defaults]\non_conflict = \"keep-both\"\n")

	quiet := true
	cmd := newCopyCmd(&quiet)
	cmd.SetArgs([]string{artifact, lake, target})
	assert.Error(t, cmd.Execute())
}
