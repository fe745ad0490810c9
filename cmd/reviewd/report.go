// # cmd/reviewd/report.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"reviewd/internal/analyzer"
	"reviewd/internal/config"
	"reviewd/internal/history"
)

var (
	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	bugStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60A5FA"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type fileResult struct {
	path   string
	report analyzer.Report
}

// runReview analyzes each path through the engine and reports findings on
// the terminal. The exit code is 1 when any file fails to read or any
// ERROR or BUG finding exists, matching CI gate semantics.
func runReview(ctx context.Context, cfg *config.Config, recorder *history.Recorder, paths []string) int {
	opts := cfg.AnalysisOptions()

	exit := 0
	var results []fileResult
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reviewd: %v\n", err)
			exit = 1
			continue
		}

		start := time.Now()
		report := analyzer.Analyze(ctx, data, opts)
		recordRun(recorder, string(data), report, time.Since(start))

		results = append(results, fileResult{path: path, report: report})
		if report.Summary.Errors > 0 || report.Summary.Bugs > 0 {
			exit = 1
		}
	}

	if *ui {
		if err := runUI(results); err != nil {
			slog.Error("failed to run UI", "error", err)
			return 1
		}
		return exit
	}

	for _, res := range results {
		fmt.Print(formatFileReport(res))
	}
	if len(results) > 1 {
		fmt.Println(strings.Repeat("-", 40))
		total := totalSummary(results)
		fmt.Println(statusStyle.Render(fmt.Sprintf("%d files reviewed | %s", len(results), summaryLine(total))))
	}
	return exit
}

func recordRun(recorder *history.Recorder, code string, report analyzer.Report, elapsed time.Duration) {
	if recorder == nil {
		return
	}
	recorder.Record(history.Record{
		Source:     history.SourceCLI,
		LineCount:  analyzer.CountLines(code),
		Bugs:       report.Summary.Bugs,
		Warnings:   report.Summary.Warnings,
		Info:       report.Summary.Info,
		Errors:     report.Summary.Errors,
		Total:      report.Summary.Total,
		DurationMS: elapsed.Milliseconds(),
	})
}

func formatFileReport(res fileResult) string {
	var b strings.Builder
	b.WriteString(pathStyle.Render(res.path))
	b.WriteString("\n")

	for _, d := range res.report.Issues {
		loc := "file"
		if d.Line != nil {
			loc = fmt.Sprintf("line %d", *d.Line)
		}
		b.WriteString(fmt.Sprintf("  %s  %-9s %s\n",
			severityStyle(d.Severity).Render(fmt.Sprintf("%-7s", d.Severity)),
			loc, d.Message))
	}

	b.WriteString(fmt.Sprintf("  %s\n\n", statusStyle.Render(summaryLine(res.report.Summary))))
	return b.String()
}

func summaryLine(s analyzer.Summary) string {
	return fmt.Sprintf("%d findings: %d errors, %d bugs, %d warnings, %d info",
		s.Total, s.Errors, s.Bugs, s.Warnings, s.Info)
}

func totalSummary(results []fileResult) analyzer.Summary {
	var t analyzer.Summary
	for _, r := range results {
		t.Errors += r.report.Summary.Errors
		t.Bugs += r.report.Summary.Bugs
		t.Warnings += r.report.Summary.Warnings
		t.Info += r.report.Summary.Info
		t.Total += r.report.Summary.Total
	}
	return t
}

func severityStyle(sev analyzer.Severity) lipgloss.Style {
	switch sev {
	case analyzer.SeverityError:
		return errorStyle
	case analyzer.SeverityBug:
		return bugStyle
	case analyzer.SeverityWarning:
		return warningStyle
	default:
		return infoStyle
	}
}
