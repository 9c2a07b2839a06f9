package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTree populates root with a small ebook tree:
//
//	a.epub
//	b.PDF
//	notes.md
//	sub/c.mobi
//	sub/deep/d.epub
//	link.epub -> a.epub (symlink)
func createTestTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub", "deep"), 0o755))
	for rel, content := range map[string]string{
		"a.epub":                           "alpha",
		"b.PDF":                            "bravo pdf",
		"notes.md":                         "not an ebook",
		filepath.Join("sub", "c.mobi"):     "charlie",
		filepath.Join("sub", "deep", "d.epub"): "delta",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	require.NoError(t, os.Symlink("a.epub", filepath.Join(root, "link.epub")))
}

func collectPaths(t *testing.T, cfg Config) map[string]FileRecord {
	t.Helper()
	records, errs, err := Collect(context.Background(), cfg)
	require.NoError(t, err)
	require.Empty(t, errs)

	byRel := make(map[string]FileRecord, len(records))
	for _, rec := range records {
		byRel[rec.Rel] = rec
	}
	return byRel
}

func TestWalker_ExtensionFilter(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	byRel := collectPaths(t, Config{
		Root:       root,
		Extensions: []string{"epub", ".MOBI"},
	})

	assert.Len(t, byRel, 3)
	assert.Contains(t, byRel, "a.epub")
	assert.Contains(t, byRel, filepath.Join("sub", "c.mobi"))
	assert.Contains(t, byRel, filepath.Join("sub", "deep", "d.epub"))
	assert.NotContains(t, byRel, "b.PDF")
	assert.NotContains(t, byRel, "notes.md")
	// Symlinks are never content.
	assert.NotContains(t, byRel, "link.epub")
}

func TestWalker_CaseInsensitiveExtensions(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	byRel := collectPaths(t, Config{Root: root, Extensions: []string{"pdf"}})
	require.Len(t, byRel, 1)

	rec := byRel["b.PDF"]
	assert.Equal(t, ".pdf", rec.Ext)
	assert.Equal(t, int64(len("bravo pdf")), rec.Size)
	assert.False(t, rec.ModTime.IsZero())
	assert.True(t, filepath.IsAbs(rec.Path))
}

func TestWalker_NoFilterMatchesAll(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	byRel := collectPaths(t, Config{Root: root})
	assert.Len(t, byRel, 4) // everything regular, symlink excluded
	assert.Contains(t, byRel, "notes.md")
}

func TestWalker_ExcludeSet(t *testing.T) {
	root := t.TempDir()
	createTestTree(t, root)

	absRoot, err := filepath.Abs(root)
	require.NoError(t, err)

	byRel := collectPaths(t, Config{
		Root:       root,
		Extensions: []string{"epub"},
		Exclude: map[string]bool{
			filepath.Join(absRoot, "a.epub"): true,
		},
	})

	assert.NotContains(t, byRel, "a.epub")
	assert.Contains(t, byRel, filepath.Join("sub", "deep", "d.epub"))
}

// A single worker over a root whose fan-out exceeds the work queue buffer
// must still finish: a worker that cannot queue a subdirectory walks it
// inline rather than blocking on its own queue.
func TestWalker_SingleWorkerBushyTree(t *testing.T) {
	root := t.TempDir()
	for i := range 8 {
		dir := filepath.Join(root, fmt.Sprintf("shelf%d", i), "inner")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "book.epub"), []byte("x"), 0o644))
	}

	type outcome struct {
		records []FileRecord
		errs    []error
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		records, errs, err := Collect(context.Background(), Config{Root: root, Workers: 1})
		done <- outcome{records, errs, err}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Empty(t, res.errs)
		assert.Len(t, res.records, 8)
	case <-time.After(10 * time.Second):
		t.Fatal("walk did not finish; a full work queue stranded its only worker")
	}
}

func TestFileError_Unwrap(t *testing.T) {
	cause := os.ErrNotExist
	err := &FileError{Path: "/lake/ghost.epub", Err: cause}

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "/lake/ghost.epub")

	var ferr *FileError
	require.ErrorAs(t, fmt.Errorf("datalake scan: %w", err), &ferr)
	assert.Equal(t, "/lake/ghost.epub", ferr.Path)
}

func TestValidateRoot(t *testing.T) {
	root := t.TempDir()

	abs, err := ValidateRoot(root)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(abs))

	_, err = ValidateRoot(filepath.Join(root, "missing"))
	assert.Error(t, err)

	file := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = ValidateRoot(file)
	assert.Error(t, err)
}

func TestNormalizeExtensions(t *testing.T) {
	assert.Nil(t, NormalizeExtensions(nil))

	m := NormalizeExtensions([]string{"EPUB", ".Mobi", " pdf ", ""})
	assert.Equal(t, map[string]bool{".epub": true, ".mobi": true, ".pdf": true}, m)
}
