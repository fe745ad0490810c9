// # internal/analyzer/report.go
package analyzer

import "sort"

// buildReport orders and tallies diagnostics into the final report. Sorting
// is stable: within a severity, line-bearing findings come first in line
// order and equal keys keep emission order. An empty run synthesizes the
// single all-clear INFO finding so a report is never empty.
func buildReport(diags []Diagnostic) Report {
	if len(diags) == 0 {
		diags = []Diagnostic{{
			Severity: SeverityInfo,
			Message:  "No obvious issues found",
		}}
	}

	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Severity != b.Severity {
			return a.Severity.IsMoreUrgentThan(b.Severity)
		}
		switch {
		case a.Line == nil:
			return false
		case b.Line == nil:
			return true
		default:
			return *a.Line < *b.Line
		}
	})

	var summary Summary
	for _, d := range diags {
		switch d.Severity {
		case SeverityError:
			summary.Errors++
		case SeverityBug:
			summary.Bugs++
		case SeverityWarning:
			summary.Warnings++
		case SeverityInfo:
			summary.Info++
		}
	}
	summary.Total = len(diags)

	return Report{Issues: diags, Summary: summary}
}
