package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// FileRecord is the traversal output for one regular file.
type FileRecord struct {
	Path    string // absolute
	Rel     string // relative to the scanned root
	Size    int64
	Ext     string // normalized: lowercase, leading dot
	ModTime time.Time
}

// FileError is a traversal failure scoped to one file. The path is carried
// separately so callers can record the failure against the file rather than
// the run.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

// Config controls walker behavior.
type Config struct {
	Root       string
	Extensions []string        // allow-list; empty means all files
	Exclude    map[string]bool // absolute paths to skip (resume mode)
	Workers    int
}

// Walker traverses a directory tree in parallel and emits FileRecord items
// for regular files matching the extension allow-list.
type Walker struct {
	cfg     Config
	exts    map[string]bool
	records chan FileRecord
	errs    chan error
}

// NewWalker creates a walker with the given config.
func NewWalker(cfg Config) *Walker {
	if cfg.Workers <= 0 {
		cfg.Workers = min(runtime.NumCPU(), 8)
	}
	return &Walker{
		cfg:     cfg,
		exts:    NormalizeExtensions(cfg.Extensions),
		records: make(chan FileRecord, cfg.Workers*4),
		errs:    make(chan error, cfg.Workers*4),
	}
}

// NormalizeExtensions lowercases extensions and ensures a leading dot.
// Returns nil for an empty list (meaning: match everything).
func NormalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[e] = true
	}
	return m
}

// ValidateRoot checks that root exists and is a directory. Called before any
// work begins so a bad root aborts the whole run.
func ValidateRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %s is not a directory", abs)
	}
	return abs, nil
}

// Walk starts the walker and returns channels for records and errors.
// The caller must consume from both channels until they close.
func (w *Walker) Walk(ctx context.Context) (<-chan FileRecord, <-chan error) {
	go func() {
		defer close(w.records)
		defer close(w.errs)
		w.walkTree(ctx)
	}()
	return w.records, w.errs
}

func (w *Walker) walkTree(ctx context.Context) {
	workQueue := make(chan string, w.cfg.Workers*2)
	var outstanding sync.WaitGroup // directories queued but not yet processed

	var workerWg sync.WaitGroup
	for range w.cfg.Workers {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dirPath := range workQueue {
				w.walkDir(ctx, dirPath, workQueue, &outstanding)
				outstanding.Done()
			}
		}()
	}

	outstanding.Add(1)
	workQueue <- w.cfg.Root

	outstanding.Wait()
	close(workQueue)
	workerWg.Wait()
}

func (w *Walker) walkDir(ctx context.Context, dirPath string, workQueue chan<- string, outstanding *sync.WaitGroup) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		w.sendErr(fmt.Errorf("readdir %s: %w", dirPath, err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entryPath := filepath.Join(dirPath, entry.Name())

		if entry.IsDir() {
			outstanding.Add(1)
			select {
			case workQueue <- entryPath:
			default:
				// Queue full. Every worker may be a blocked sender at this
				// point, so walk the subdirectory inline instead of waiting.
				w.walkDir(ctx, entryPath, workQueue, outstanding)
				outstanding.Done()
			}
			continue
		}

		if !entry.Type().IsRegular() {
			continue // symlinks and specials are not library content
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if w.exts != nil && !w.exts[ext] {
			continue
		}

		if w.cfg.Exclude[entryPath] {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Vanished between readdir and stat.
			w.sendErr(&FileError{Path: entryPath, Err: fmt.Errorf("stat: %w", err)})
			continue
		}

		rel, err := filepath.Rel(w.cfg.Root, entryPath)
		if err != nil {
			w.sendErr(&FileError{Path: entryPath, Err: fmt.Errorf("rel path: %w", err)})
			continue
		}

		w.records <- FileRecord{
			Path:    entryPath,
			Rel:     rel,
			Size:    info.Size(),
			Ext:     ext,
			ModTime: info.ModTime(),
		}
	}
}

func (w *Walker) sendErr(err error) {
	select {
	case w.errs <- err:
	default:
	}
}

// Collect runs a walk to completion and returns all records plus any
// traversal errors. Convenience wrapper for callers that want the full
// listing up front.
func Collect(ctx context.Context, cfg Config) ([]FileRecord, []error, error) {
	root, err := ValidateRoot(cfg.Root)
	if err != nil {
		return nil, nil, err
	}
	cfg.Root = root

	w := NewWalker(cfg)
	records, errs := w.Walk(ctx)

	var out []FileRecord
	var walkErrs []error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for err := range errs {
			walkErrs = append(walkErrs, err)
		}
	}()
	for rec := range records {
		out = append(out, rec)
	}
	<-done

	return out, walkErrs, nil
}
