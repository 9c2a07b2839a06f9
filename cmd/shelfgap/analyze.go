package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfgap/shelfgap/internal/analyze"
	"github.com/shelfgap/shelfgap/internal/checkpoint"
	"github.com/shelfgap/shelfgap/internal/config"
	"github.com/shelfgap/shelfgap/internal/sig"
	"github.com/shelfgap/shelfgap/internal/sigcache"
	"github.com/shelfgap/shelfgap/internal/stats"
)

// defaultExtensions is the ebook formats scanned when --ext is not given.
var defaultExtensions = []string{
	"epub", "mobi", "azw", "azw3", "pdf", "djvu", "fb2", "cbz", "cbr", "txt", "rtf",
}

func defaultOutputPath() string {
	ts := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("missing_books_%s.csv", ts)
}

func newAnalyzeCmd(quiet *bool) *cobra.Command {
	var (
		output         string
		extensions     []string
		resumePath     string
		accel          bool
		accelDevice    int
		accelThreshold string
		batchSize      int
		workers        int
		noCache        bool
		progress       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <datalake> <library>",
		Short: "Compare a datalake tree against the library and record missing files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			datalakeRoot, libraryRoot := args[0], args[1]

			// Config file defaults apply only for flags not set on the CLI.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			d := cfg.Defaults
			if !cmd.Flags().Changed("workers") && d.Workers != nil {
				workers = *d.Workers
			}
			if !cmd.Flags().Changed("accel") && d.Accel != nil {
				accel = *d.Accel
			}
			if !cmd.Flags().Changed("accel-threshold") && d.AccelThreshold != nil {
				accelThreshold = *d.AccelThreshold
			}
			if !cmd.Flags().Changed("batch-size") && d.BatchSize != nil {
				batchSize = *d.BatchSize
			}
			if !cmd.Flags().Changed("ext") && d.Extensions != nil {
				extensions = *d.Extensions
			}
			if !cmd.Flags().Changed("no-cache") && d.NoCache != nil {
				noCache = *d.NoCache
			}

			threshold, err := config.ParseSize(accelThreshold)
			if err != nil {
				return fmt.Errorf("invalid --accel-threshold: %w", err)
			}
			if workers <= 0 {
				workers = min(runtime.NumCPU()*2, 32)
			}

			// Resume: prior rows are loaded once and the same artifact is
			// appended to, so previously recorded rows keep their order.
			var resumed []checkpoint.Row
			if resumePath != "" {
				if _, err := os.Stat(resumePath); err != nil {
					return fmt.Errorf("resume artifact: %w", err)
				}
				resumed, err = checkpoint.Load(resumePath)
				if err != nil {
					return err
				}
				output = resumePath
			} else if output == "" {
				output = defaultOutputPath()
			}

			writer, err := checkpoint.NewWriter(output, batchSize)
			if err != nil {
				return err
			}
			defer writer.Close()
			slog.Info("writing artifact", "path", output)

			var cache *sigcache.Cache
			if !noCache {
				abs, _ := filepath.Abs(libraryRoot)
				cache, err = sigcache.Open(abs)
				if err != nil {
					slog.Warn("library signature cache unavailable", "error", err)
					cache = nil
				} else {
					defer cache.Close()
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			selector := sig.NewSelector(sig.SelectorConfig{
				AccelEnabled:   accel,
				AccelDevice:    accelDevice,
				AccelThreshold: threshold,
			})

			var prog analyze.Progress
			if progress && !*quiet {
				prog = newProgressBar()
			}

			result := analyze.Run(ctx, analyze.Config{
				DatalakeRoot: datalakeRoot,
				LibraryRoot:  libraryRoot,
				Extensions:   extensions,
				Workers:      workers,
				Selector:     selector,
				Writer:       writer,
				Resumed:      resumed,
				Cache:        cache,
				Stats:        collector,
				Progress:     prog,
			})
			if result.Err != nil {
				return result.Err
			}

			if !*quiet {
				printAnalyzeSummary(os.Stdout, result.Stats)
			}
			if result.Stats.Errored > 0 {
				// Per-file errors do not fail the run; they are recorded in
				// the artifact for manual follow-up.
				slog.Warn("completed with unreadable files", "count", result.Stats.Errored)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output CSV path (default: ./missing_books_<timestamp>.csv)")
	cmd.Flags().StringSliceVar(&extensions, "ext", defaultExtensions, "file extensions to include")
	cmd.Flags().StringVar(&resumePath, "resume", "", "resume from an existing artifact, appending to it")
	cmd.Flags().BoolVar(&accel, "accel", false, "enable accelerated full-content hashing for large files")
	cmd.Flags().IntVar(&accelDevice, "accel-device", 0, "accelerator device ID")
	cmd.Flags().StringVar(&accelThreshold, "accel-threshold", "100M", "minimum file size for accelerated hashing")
	cmd.Flags().IntVar(&batchSize, "batch-size", 100, "artifact write batch size")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "analysis workers (default: min(NumCPU*2, 32))")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the library signature cache")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")

	return cmd
}
