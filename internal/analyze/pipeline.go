// Package analyze orchestrates the two-tree comparison: it builds a
// signature index for the library, then classifies every datalake file as
// present or missing by progressively deepening its signature only as far
// as collisions require.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shelfgap/shelfgap/internal/checkpoint"
	"github.com/shelfgap/shelfgap/internal/scan"
	"github.com/shelfgap/shelfgap/internal/sig"
	"github.com/shelfgap/shelfgap/internal/sigcache"
	"github.com/shelfgap/shelfgap/internal/stats"
)

// Progress receives coarse progress updates from the pipeline. Implementations
// must be safe for concurrent Increment calls.
type Progress interface {
	Start(stage string, total int)
	Increment()
	Finish()
}

// Config describes one analysis run.
type Config struct {
	DatalakeRoot string
	LibraryRoot  string
	Extensions   []string
	Workers      int
	Selector     *sig.Selector
	Writer       *checkpoint.Writer
	Resumed      []checkpoint.Row // rows loaded from a prior artifact
	Cache        *sigcache.Cache  // optional library signature cache
	Stats        *stats.Collector
	Progress     Progress // optional
}

// Result is the outcome of an analysis run.
type Result struct {
	Stats stats.Snapshot
	Rows  []checkpoint.Row // rows produced by this run (resumed rows excluded)
	Err   error
}

// Run executes an analysis, blocking until complete. Per-file failures are
// recorded as error rows and never abort the run; only precondition failures
// (bad roots) surface as Result.Err before any work is done.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	lakeRoot, err := scan.ValidateRoot(cfg.DatalakeRoot)
	if err != nil {
		return Result{Err: fmt.Errorf("datalake: %w", err)}
	}
	libRoot, err := scan.ValidateRoot(cfg.LibraryRoot)
	if err != nil {
		return Result{Err: fmt.Errorf("library: %w", err)}
	}

	visited := checkpoint.VisitedPaths(cfg.Resumed)
	if len(visited) > 0 {
		slog.Info("resuming from prior artifact", "completed", len(visited))
		cfg.Stats.AddFilesSkipped(int64(len(visited)))
	}

	// Index the library by size. Index insertion happens on the walker's
	// consumer side with several goroutines to keep up with the scan.
	libIdx := sig.NewIndex()
	libWalker := scan.NewWalker(scan.Config{
		Root:       libRoot,
		Extensions: cfg.Extensions,
		Workers:    cfg.Workers,
	})
	libRecords, libErrs := libWalker.Walk(ctx)

	var indexWg sync.WaitGroup
	for range min(cfg.Workers, 4) {
		indexWg.Add(1)
		go func() {
			defer indexWg.Done()
			for rec := range libRecords {
				r := rec
				libIdx.Insert(sig.SizeKey(r.Size), &r)
			}
		}()
	}
	for err := range libErrs {
		slog.Warn("library scan", "error", err)
	}
	indexWg.Wait()

	// Collect the datalake listing, skipping paths the checkpoint already
	// resolved; those files are never re-read or re-hashed.
	lakeFiles, lakeErrs, err := scanDatalake(ctx, lakeRoot, cfg.Extensions, visited, cfg.Workers)
	if err != nil {
		return Result{Err: err}
	}
	// Files that failed at traversal time are recorded as error rows, not
	// silently dropped; directory-level failures have no file to record.
	errRows := scanErrorRows(lakeErrs)
	for _, serr := range lakeErrs {
		slog.Warn("datalake scan", "error", serr)
		cfg.Stats.AddErrored(1)
	}
	if cfg.Writer != nil {
		for _, row := range errRows {
			if err := cfg.Writer.Append(row); err != nil {
				return Result{Err: err}
			}
		}
	}
	cfg.Stats.AddFilesScanned(int64(len(lakeFiles)))
	slog.Info("scan complete",
		"datalake_files", len(lakeFiles),
		"library_size_groups", libIdx.Len(),
	)

	if cfg.Progress != nil {
		cfg.Progress.Start("analyzing", len(lakeFiles))
		defer cfg.Progress.Finish()
	}

	res := &resolver{
		idx:      libIdx,
		selector: cfg.Selector,
		cache:    cfg.Cache,
		stats:    cfg.Stats,
	}

	// Classify datalake files with a fixed-size worker pool. Each file's
	// signature is one atomic unit of work; library peer groups are deepened
	// at most once via the resolver.
	rows := make([]checkpoint.Row, len(lakeFiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range lakeFiles {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			rows[i] = classify(&lakeFiles[i], res, cfg.Stats)
			if cfg.Writer != nil {
				if err := cfg.Writer.Append(rows[i]); err != nil {
					return err
				}
			}
			if cfg.Progress != nil {
				cfg.Progress.Increment()
			}
			return nil
		})
	}
	runErr := g.Wait()

	if cfg.Writer != nil {
		if err := cfg.Writer.Flush(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.Flush(); err != nil {
			slog.Warn("signature cache flush", "error", err)
		}
	}

	rows = append(rows, errRows...)

	// Datalake-internal duplicates: missing files whose deepest computed
	// layers match an earlier missing file. Reported so operators know the
	// copy phase will import fewer files than the missing count.
	all := append(append([]checkpoint.Row{}, cfg.Resumed...), rows...)
	_, dupes := checkpoint.UniqueMissing(all)
	cfg.Stats.AddLakeDuplicates(int64(dupes))

	return Result{
		Stats: cfg.Stats.Snapshot(),
		Rows:  rows,
		Err:   runErr,
	}
}

// scanErrorRows converts per-file traversal failures into error rows so the
// affected paths land in the artifact.
func scanErrorRows(errs []error) []checkpoint.Row {
	var rows []checkpoint.Row
	for _, err := range errs {
		var ferr *scan.FileError
		if errors.As(err, &ferr) {
			rows = append(rows, checkpoint.Row{Path: ferr.Path, Status: checkpoint.StatusError})
		}
	}
	return rows
}

func scanDatalake(ctx context.Context, root string, exts []string, visited map[string]bool, workers int) ([]scan.FileRecord, []error, error) {
	return scan.Collect(ctx, scan.Config{
		Root:       root,
		Extensions: exts,
		Exclude:    visited,
		Workers:    workers,
	})
}

// classify resolves one datalake file against the library index, deepening
// its signature only while shallower layers keep colliding.
func classify(rec *scan.FileRecord, res *resolver, st *stats.Collector) checkpoint.Row {
	row := checkpoint.Row{Path: rec.Path, Size: rec.Size}
	s := sig.Signature{Size: rec.Size}

	// Size layer: an unseen size is unique without reading a byte.
	// Zero-byte files resolve here too unless the library also has one.
	if !res.idx.Has(s.SizeKey()) {
		row.Status = checkpoint.StatusMissing
		st.AddMissing(1)
		return row
	}

	// Partial layer. The library peer group is widened first so a matching
	// record is guaranteed to be indexed before we look it up.
	if err := res.ensurePartials(rec.Size); err != nil {
		slog.Warn("library peer group", "size", rec.Size, "error", err)
	}
	partial, err := sig.PartialHash(rec.Path)
	if err != nil {
		return errorRow(row, err, st)
	}
	st.AddPartialHashed(1)
	s.Partial = partial
	row.Partial = partial

	if !res.idx.Has(s.PartialKey()) {
		row.Status = checkpoint.StatusMissing
		st.AddMissing(1)
		return row
	}

	// Full layer.
	if err := res.ensureFulls(rec.Size, partial); err != nil {
		slog.Warn("library peer group", "size", rec.Size, "error", err)
	}
	full, err := res.selector.FullHash(rec.Path, rec.Size)
	if err != nil {
		return errorRow(row, err, st)
	}
	st.AddFullHashed(1)
	s.Full = full
	row.Full = full

	if res.idx.Has(s.FullKey()) {
		row.Status = checkpoint.StatusPresent
		st.AddPresent(1)
	} else {
		row.Status = checkpoint.StatusMissing
		st.AddMissing(1)
	}
	return row
}

func errorRow(row checkpoint.Row, err error, st *stats.Collector) checkpoint.Row {
	slog.Warn("unreadable datalake file", "path", row.Path, "error", err)
	row.Status = checkpoint.StatusError
	st.AddErrored(1)
	return row
}
