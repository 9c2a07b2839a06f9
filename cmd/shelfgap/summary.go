package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shelfgap/shelfgap/internal/stats"
)

func printAnalyzeSummary(w io.Writer, s stats.Snapshot) {
	rows := [][2]string{
		{"processed", strconv.FormatInt(s.FilesScanned, 10)},
		{"skipped (resumed)", strconv.FormatInt(s.FilesSkipped, 10)},
		{"missing", strconv.FormatInt(s.Missing, 10)},
		{"present", strconv.FormatInt(s.Present, 10)},
		{"errored", strconv.FormatInt(s.Errored, 10)},
		{"partial hashes", strconv.FormatInt(s.PartialHashed, 10)},
		{"full hashes", strconv.FormatInt(s.FullHashed, 10)},
		{"cache hits", strconv.FormatInt(s.CacheHits, 10)},
		{"datalake duplicates", strconv.FormatInt(s.LakeDuplicates, 10)},
		{"elapsed", s.Elapsed.Round(10 * time.Millisecond).String()},
	}
	fmt.Fprintln(w, renderSummary("analysis", rows))
}

func printCopySummary(w io.Writer, s stats.Snapshot, dryRun bool) {
	title := "copy"
	if dryRun {
		title = "copy (dry run)"
	}
	rows := [][2]string{
		{"copied", strconv.FormatInt(s.FilesCopied, 10)},
		{"renamed", strconv.FormatInt(s.FilesRenamed, 10)},
		{"overwritten", strconv.FormatInt(s.Overwritten, 10)},
		{"skipped", strconv.FormatInt(s.CopySkipped, 10)},
		{"failed", strconv.FormatInt(s.CopyFailed, 10)},
		{"duplicates dropped", strconv.FormatInt(s.LakeDuplicates, 10)},
		{"bytes", humanize.IBytes(uint64(max(s.BytesCopied, 0)))},
		{"elapsed", s.Elapsed.Round(10 * time.Millisecond).String()},
	}
	fmt.Fprintln(w, renderSummary(title, rows))
}

func renderSummary(title string, rows [][2]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(title)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	for _, r := range rows {
		tw.AppendRow(table.Row{r[0], r[1]})
	}
	return tw.Render()
}
