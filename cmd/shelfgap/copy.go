package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shelfgap/shelfgap/internal/config"
	"github.com/shelfgap/shelfgap/internal/copier"
	"github.com/shelfgap/shelfgap/internal/scan"
	"github.com/shelfgap/shelfgap/internal/stats"
)

func newCopyCmd(quiet *bool) *cobra.Command {
	var (
		onConflict string
		dryRun     bool
		workers    int
		progress   bool
	)

	cmd := &cobra.Command{
		Use:   "copy <artifact.csv> <datalake> <target>",
		Short: "Copy missing files from the datalake flat into a target directory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifactPath, datalakeRoot, targetDir := args[0], args[1], args[2]

			// Config file defaults apply only for flags not set on the CLI.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			d := cfg.Defaults
			if !cmd.Flags().Changed("on-conflict") && d.OnConflict != nil {
				onConflict = *d.OnConflict
			}
			if !cmd.Flags().Changed("workers") && d.Workers != nil {
				workers = *d.Workers
			}

			// All preconditions are checked before any byte moves.
			mode, err := copier.ParseMode(onConflict)
			if err != nil {
				return err
			}
			if _, err := scan.ValidateRoot(datalakeRoot); err != nil {
				return err
			}
			if workers <= 0 {
				workers = min(runtime.NumCPU(), 4)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()

			var prog copier.Progress
			if progress && !*quiet {
				prog = newProgressBar()
			}

			result := copier.Run(ctx, copier.Config{
				ArtifactPath: artifactPath,
				DatalakeRoot: datalakeRoot,
				TargetDir:    targetDir,
				Mode:         mode,
				DryRun:       dryRun,
				Workers:      workers,
				Stats:        collector,
				Progress:     prog,
			})
			if result.Err != nil {
				return result.Err
			}

			if !*quiet {
				printCopySummary(os.Stdout, result.Stats, dryRun)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&onConflict, "on-conflict", "rename", "conflict handling: rename, skip, or overwrite")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the copy plan without writing")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "copy workers (default: min(NumCPU, 4))")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar")

	return cmd
}
