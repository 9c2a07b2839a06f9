package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_HeaderOnFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "datalake_path,size,partial_hash,full_hash,status\n", string(data))
}

func TestWriter_BatchFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, 3)
	require.NoError(t, err)
	defer w.Close()

	for i := range 2 {
		require.NoError(t, w.Append(Row{
			Path:   filepath.Join("/lake", "book"+strings.Repeat("x", i)+".epub"),
			Size:   100,
			Status: StatusMissing,
		}))
	}
	assert.Equal(t, int64(0), w.Appended(), "below batch size, nothing written yet")

	require.NoError(t, w.Append(Row{Path: "/lake/third.epub", Size: 7, Status: StatusPresent}))
	assert.Equal(t, int64(3), w.Appended(), "hitting batch size flushes")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Len(t, lines, 4) // header + 3 rows
}

func TestWriter_CloseFlushesRemainder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, 100)
	require.NoError(t, err)
	require.NoError(t, w.Append(Row{Path: "/lake/a.epub", Size: 1, Status: StatusMissing}))
	require.NoError(t, w.Close())

	rows, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/lake/a.epub", rows[0].Path)
}

func TestLoad_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	in := []Row{
		{Path: "/lake/a.epub", Size: 4096, Partial: "aaaa", Full: "ffff", Status: StatusMissing},
		{Path: "/lake/b.epub", Size: 10, Status: StatusPresent},
		{Path: "/lake/c.epub", Size: 0, Partial: "cccc", Status: StatusError},
	}

	w, err := NewWriter(path, 1)
	require.NoError(t, err)
	for _, row := range in {
		require.NoError(t, w.Append(row))
	}
	require.NoError(t, w.Close())

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestLoad_AppendReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, 1)
	require.NoError(t, err)
	require.NoError(t, w.Append(Row{Path: "/lake/a.epub", Size: 1, Status: StatusMissing}))
	require.NoError(t, w.Close())

	// Second run appends to the same artifact without a second header.
	w, err = NewWriter(path, 1)
	require.NoError(t, err)
	require.NoError(t, w.Append(Row{Path: "/lake/b.epub", Size: 2, Status: StatusPresent}))
	require.NoError(t, w.Close())

	rows, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "/lake/a.epub", rows[0].Path)
	assert.Equal(t, "/lake/b.epub", rows[1].Path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "datalake_path"))
}

func TestLoad_DropsTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	w, err := NewWriter(path, 1)
	require.NoError(t, err)
	require.NoError(t, w.Append(Row{Path: "/lake/a.epub", Size: 1, Status: StatusMissing}))
	require.NoError(t, w.Close())

	// Simulate a crash mid-write: a dangling partial row at the end.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("/lake/b.epub,204")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/lake/a.epub", rows[0].Path)
}

func TestLoad_DropsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	content := strings.Join([]string{
		"datalake_path,size,partial_hash,full_hash,status",
		"/lake/good.epub,10,,,missing",
		"/lake/badsize.epub,notanumber,,,missing",
		"/lake/badstatus.epub,10,,,maybe",
		",10,,,missing",
		"/lake/also-good.epub,20,abcd,,present",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rows, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "/lake/good.epub", rows[0].Path)
	assert.Equal(t, "/lake/also-good.epub", rows[1].Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestVisitedPaths(t *testing.T) {
	rows := []Row{
		{Path: "/lake/a.epub", Status: StatusMissing},
		{Path: "/lake/b.epub", Status: StatusPresent},
		{Path: "/lake/c.epub", Status: StatusError},
	}
	visited := VisitedPaths(rows)
	assert.Len(t, visited, 3)
	assert.True(t, visited["/lake/c.epub"], "error rows count as visited")
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"missing", "present", "error"} {
		s, err := ParseStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, Status(valid), s)
	}
	_, err := ParseStatus("Missing")
	assert.Error(t, err)
}

func TestUniqueMissing(t *testing.T) {
	rows := []Row{
		// Same full hash: duplicates regardless of path.
		{Path: "/lake/a.epub", Size: 100, Partial: "p1", Full: "f1", Status: StatusMissing},
		{Path: "/lake/copy-of-a.epub", Size: 100, Partial: "p1", Full: "f1", Status: StatusMissing},
		// Same size but comparison stopped at size: duplicates at that depth.
		{Path: "/lake/b.epub", Size: 55, Status: StatusMissing},
		{Path: "/lake/c.epub", Size: 55, Status: StatusMissing},
		// Same size, distinct partials: not duplicates.
		{Path: "/lake/d.epub", Size: 77, Partial: "pd", Status: StatusMissing},
		{Path: "/lake/e.epub", Size: 77, Partial: "pe", Status: StatusMissing},
		// Present and error rows never participate.
		{Path: "/lake/f.epub", Size: 100, Partial: "p1", Full: "f1", Status: StatusPresent},
		{Path: "/lake/g.epub", Size: 55, Status: StatusError},
	}

	unique, dupes := UniqueMissing(rows)
	assert.Equal(t, 2, dupes)
	require.Len(t, unique, 4)
	assert.Equal(t, "/lake/a.epub", unique[0].Path)
	assert.Equal(t, "/lake/b.epub", unique[1].Path)
	assert.Equal(t, "/lake/d.epub", unique[2].Path)
	assert.Equal(t, "/lake/e.epub", unique[3].Path)
}

func TestUniqueMissing_DepthSeparatesKeys(t *testing.T) {
	// A size-only row and a full-hash row of the same size are distinct
	// groups: their computed layers differ, so identity is unknown.
	rows := []Row{
		{Path: "/lake/a.epub", Size: 9, Status: StatusMissing},
		{Path: "/lake/b.epub", Size: 9, Partial: "p", Full: "f", Status: StatusMissing},
	}
	unique, dupes := UniqueMissing(rows)
	assert.Equal(t, 0, dupes)
	assert.Len(t, unique, 2)
}
