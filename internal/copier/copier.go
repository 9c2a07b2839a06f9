package copier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/shelfgap/shelfgap/internal/checkpoint"
	"github.com/shelfgap/shelfgap/internal/stats"
)

// Progress receives per-file progress updates. Must be safe for concurrent
// Increment calls.
type Progress interface {
	Start(stage string, total int)
	Increment()
	Finish()
}

// Config describes a copy run.
type Config struct {
	ArtifactPath string
	DatalakeRoot string
	TargetDir    string
	Mode         Mode
	DryRun       bool
	Workers      int
	Stats        *stats.Collector
	Progress     Progress // optional
}

// Result is the outcome of a copy run.
type Result struct {
	Stats     stats.Snapshot
	Decisions []Decision
	Err       error
}

// Run copies every missing file recorded in the artifact flat into the
// target directory, one of each identical-content group. Dry-run executes
// the full decision logic and suppresses only the byte transfer, so the
// reported plan matches what a real run would do.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	rows, err := checkpoint.Load(cfg.ArtifactPath)
	if err != nil {
		return Result{Err: err}
	}

	unique, dupes := checkpoint.UniqueMissing(rows)
	if dupes > 0 {
		slog.Info("skipping datalake-internal duplicates", "count", dupes)
		cfg.Stats.AddLakeDuplicates(int64(dupes))
	}

	if !cfg.DryRun {
		if err := os.MkdirAll(cfg.TargetDir, 0o755); err != nil {
			return Result{Err: fmt.Errorf("create target dir: %w", err)}
		}
	}

	if cfg.Progress != nil {
		cfg.Progress.Start("copying", len(unique))
		defer cfg.Progress.Finish()
	}

	resolver := NewResolver(cfg.TargetDir, cfg.Mode)

	tasks := make(chan checkpoint.Row)
	errs := make(chan error, cfg.Workers*4)
	decisions := make([]Decision, len(unique))

	var wg sync.WaitGroup
	var decIdx sync.Map // row path -> index, to keep decision order stable
	for i, row := range unique {
		decIdx.Store(row.Path, i)
	}

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range tasks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				dec := resolver.Resolve(row.Path)
				if v, ok := decIdx.Load(row.Path); ok {
					decisions[v.(int)] = dec
				}
				if err := execute(dec, row, cfg); err != nil {
					cfg.Stats.AddCopyFailed(1)
					select {
					case errs <- err:
					default:
					}
				}
				if cfg.Progress != nil {
					cfg.Progress.Increment()
				}
			}
		}()
	}

	var sendErr error
feed:
	for _, row := range unique {
		select {
		case tasks <- row:
		case <-ctx.Done():
			sendErr = ctx.Err()
			break feed
		}
	}
	close(tasks)
	wg.Wait()
	close(errs)

	copyErr := sendErr
	errCount := 0
	for err := range errs {
		errCount++
		if copyErr == nil {
			copyErr = err
		}
	}
	if errCount > 1 {
		copyErr = fmt.Errorf("%w (and %d more errors)", copyErr, errCount-1)
	}

	return Result{
		Stats:     cfg.Stats.Snapshot(),
		Decisions: decisions,
		Err:       copyErr,
	}
}

func execute(dec Decision, row checkpoint.Row, cfg Config) error {
	switch dec.Action {
	case ActionSkip:
		// Existing destination left untouched; not an error.
		slog.Info("skipping, destination exists", "source", dec.SourcePath, "dest", dec.DestPath)
		cfg.Stats.AddCopySkipped(1)
		return nil
	case ActionRename:
		cfg.Stats.AddFilesRenamed(1)
	case ActionOverwrite:
		cfg.Stats.AddOverwritten(1)
	}

	if cfg.DryRun {
		slog.Info("would copy", "source", dec.SourcePath, "dest", dec.DestPath, "action", dec.Action)
		cfg.Stats.AddFilesCopied(1)
		return nil
	}

	n, err := copyFile(dec.SourcePath, dec.DestPath)
	if err != nil {
		return err
	}
	if row.Size > 0 && n == 0 {
		return fmt.Errorf("copy %s: wrote 0 of %d bytes", dec.SourcePath, row.Size)
	}

	slog.Debug("copied", "source", dec.SourcePath, "dest", dec.DestPath, "bytes", n)
	cfg.Stats.AddFilesCopied(1)
	cfg.Stats.AddBytesCopied(n)
	return nil
}

// copyFile writes through a temp file and renames into place, so a crashed
// copy never leaves a partial destination under the final name.
func copyFile(srcPath, dstPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	dir := filepath.Dir(dstPath)
	base := filepath.Base(dstPath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.shelfgap-tmp", base, uuid.New().String()[:8]))

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}
	defer os.Remove(tmpPath) // no-op if rename succeeded

	n, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("copy data %s: %w", srcPath, err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}

	// Keep the source's mtime, matching what a manual copy tool would do.
	_ = os.Chtimes(tmpPath, info.ModTime(), info.ModTime())

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return n, fmt.Errorf("rename %s -> %s: %w", tmpPath, dstPath, err)
	}
	return n, nil
}
