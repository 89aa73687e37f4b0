package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/AJMSD/raga/download/hashcache"
	"github.com/AJMSD/raga/download/history"
	"github.com/AJMSD/raga/download/maintenance"
	"github.com/AJMSD/raga/download/orchestrator"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment, colorize bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	style := table.StyleRounded
	if colorize {
		style.Color.Header = text.Colors{text.Bold, text.FgCyan}
	}
	tw.SetStyle(style)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func itoa(n int) string { return strconv.Itoa(n) }

// printSummary writes the per-reference table and the run totals.
func printSummary(w io.Writer, summary *orchestrator.Summary, logPath string) {
	colorize := shouldColorize(w)

	rows := make([][]string, 0, len(summary.Units))
	for i, u := range summary.Units {
		title := ""
		if u.Entity != nil {
			title = u.Entity.Title()
		}
		status := "done"
		accepted, duplicate, failed := u.Counts()
		switch {
		case u.Skipped:
			status = "skipped"
		case failed > 0:
			status = "partial"
		}
		rows = append(rows, []string{
			itoa(i + 1), string(u.Ref.Kind), truncate(u.Ref.Raw, 48), truncate(title, 40),
			itoa(accepted), itoa(duplicate), itoa(failed), status,
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable(
			[]string{"#", "Kind", "Reference", "Title", "Acquired", "Duplicate", "Failed", "Status"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			colorize,
		))
	}

	fmt.Fprintln(w, renderTable(
		[]string{"Acquired", "Duplicate", "Skipped", "Failed"},
		[][]string{{itoa(summary.Acquired), itoa(summary.Duplicate), itoa(summary.Skipped), itoa(summary.Failed)}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
		colorize,
	))
	for _, msg := range summary.Messages {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
	if logPath != "" {
		fmt.Fprintf(w, "Log file: %s\n", logPath)
	}
}

func printRuns(w io.Writer, runs []history.Run) {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04"), r.Mode, filepath.Base(r.InputFile), r.Status,
			itoa(r.Acquired), itoa(r.Duplicate), itoa(r.Skipped), itoa(r.Failed),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Run", "Started", "Mode", "Input", "Status", "Acquired", "Duplicate", "Skipped", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		shouldColorize(w),
	))
}

func printUnits(w io.Writer, units []history.Unit) {
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		rows = append(rows, []string{
			itoa(u.Position), u.Kind, truncate(u.Reference, 48), truncate(u.Title, 40), u.Status,
			itoa(u.Accepted), itoa(u.Duplicate), itoa(u.Failed), u.Message,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Kind", "Reference", "Title", "Status", "Acquired", "Duplicate", "Failed", "Message"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
		shouldColorize(w),
	))
}

func printPruneReport(w io.Writer, report *maintenance.Report) {
	colorize := shouldColorize(w)
	if report.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was changed.")
	}
	if len(report.Artists) > 0 {
		rows := make([][]string, 0, len(report.Artists))
		for _, a := range report.Artists {
			rows = append(rows, []string{a, itoa(report.PerArtist[a])})
		}
		fmt.Fprintln(w, renderTable([]string{"Artist", "Files"}, rows, []columnAlignment{alignLeft, alignRight}, colorize))
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Files removed", "Art renamed", "Art skipped", "Folders removed", "Cache entries pruned"},
		[][]string{{
			itoa(len(report.RemovedFiles)), itoa(report.RenamedArt), itoa(report.SkippedArt),
			itoa(report.RemovedFolders), itoa(report.PrunedEntries),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
		colorize,
	))
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

func printCacheStats(w io.Writer, root string, stats hashcache.Stats) {
	fmt.Fprintf(w, "Hash cache for %s\n", root)
	fmt.Fprintln(w, renderTable(
		[]string{"Files", "Hashed", "Reused", "Removed"},
		[][]string{{itoa(stats.Files), itoa(stats.Hashed), itoa(stats.Reused), itoa(stats.Removed)}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
		shouldColorize(w),
	))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
