// Package checkpoint persists analysis results as an append-only CSV
// artifact. The same file is the run's output and its resume input: state
// reconstruction is a replay of prior rows, never a mutable snapshot.
package checkpoint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
)

// Status classifies one datalake file.
type Status string

const (
	StatusMissing Status = "missing"
	StatusPresent Status = "present"
	StatusError   Status = "error"
)

// ParseStatus validates a status column value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusMissing, StatusPresent, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Row is one analysis result. Partial and Full are empty when the
// corresponding layer was never needed.
type Row struct {
	Path    string // absolute datalake path
	Size    int64
	Partial string
	Full    string
	Status  Status
}

var header = []string{"datalake_path", "size", "partial_hash", "full_hash", "status"}

// Writer appends rows to the artifact in batches. Appends are serialized and
// flushed from a single point so an interrupted run always leaves a
// valid-prefix file.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	batchSize int
	buf       []Row
	appended  int64
}

// NewWriter opens (or creates) the artifact at path for appending. A fresh
// or empty file gets the header row immediately, so even an aborted run
// leaves a loadable artifact.
func NewWriter(path string, batchSize int) (*Writer, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat artifact %s: %w", path, err)
	}

	w := &Writer{f: f, batchSize: batchSize}

	if info.Size() == 0 {
		cw := csv.NewWriter(f)
		if err := cw.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return w, nil
}

// Append buffers a row and flushes once the batch size is reached.
func (w *Writer) Append(row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, row)
	if len(w.buf) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Flush writes any buffered rows to the artifact.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}

	cw := csv.NewWriter(w.f)
	for _, row := range w.buf {
		rec := []string{
			row.Path,
			strconv.FormatInt(row.Size, 10),
			row.Partial,
			row.Full,
			string(row.Status),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", row.Path, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}

	w.appended += int64(len(w.buf))
	w.buf = w.buf[:0]
	return nil
}

// Appended returns how many rows have been written out so far.
func (w *Writer) Appended() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appended
}

// Close flushes buffered rows and closes the file.
func (w *Writer) Close() error {
	flushErr := w.Flush()
	closeErr := w.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Load reads all rows from a prior artifact. Malformed records, typically a
// truncated last row from a crashed run, are discarded so the affected file
// is simply reprocessed; a damaged tail never fails the whole resume.
func Load(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open resume artifact %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	r.ReuseRecord = true

	var rows []Row
	dropped := 0
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		if first {
			first = false
			if rec[0] == header[0] {
				continue // header row
			}
		}

		row, err := parseRow(rec)
		if err != nil {
			dropped++
			continue
		}
		rows = append(rows, row)
	}

	if dropped > 0 {
		slog.Warn("discarded malformed checkpoint rows; affected files will be reprocessed",
			"artifact", path, "dropped", dropped)
	}
	return rows, nil
}

func parseRow(rec []string) (Row, error) {
	size, err := strconv.ParseInt(rec[1], 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("bad size %q: %w", rec[1], err)
	}
	status, err := ParseStatus(rec[4])
	if err != nil {
		return Row{}, err
	}
	if rec[0] == "" {
		return Row{}, errors.New("empty path")
	}
	return Row{
		Path:    rec[0],
		Size:    size,
		Partial: rec[2],
		Full:    rec[3],
		Status:  status,
	}, nil
}

// VisitedPaths returns the set of datalake paths already recorded, used to
// skip completed files entirely on resume.
func VisitedPaths(rows []Row) map[string]bool {
	visited := make(map[string]bool, len(rows))
	for _, row := range rows {
		visited[row.Path] = true
	}
	return visited
}
