// # internal/analyzer/scanner.go
package analyzer

import (
	"fmt"
	"regexp"
	"strings"
)

// printCallPattern matches a call-like use of print. A '#' earlier on the
// line puts the match inside a comment, which scanLines filters out first.
var printCallPattern = regexp.MustCompile(`\bprint\s*\(`)

// markerTokens are matched case-insensitively against comment text.
var markerTokens = []string{"TODO", "FIXME", "HACK"}

// scanLines runs the text-level checks. It needs no syntax tree and runs
// even when parsing failed.
func scanLines(src string, opts Options) []Diagnostic {
	lines := sourceLines(src)

	var diags []Diagnostic
	for i, line := range lines {
		lineNo := i + 1
		code, comment, hasComment := splitComment(line)

		if printCallPattern.MatchString(code) {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Line:     lineAt(lineNo),
				Message:  "Avoid using print() in production code",
			})
		}

		if hasComment {
			if token := markerIn(comment); token != "" {
				diags = append(diags, Diagnostic{
					Severity: SeverityInfo,
					Line:     lineAt(lineNo),
					Message:  fmt.Sprintf("Unresolved marker comment: %s", strings.TrimSpace(comment)),
				})
			}
		}
	}

	if d, ok := fileLengthDiagnostic(len(lines), opts); ok {
		diags = append(diags, d)
	}
	return diags
}

// fileLengthDiagnostic applies the two-tier length thresholds. The harder
// tier wins and at most one diagnostic is produced; neither carries a line.
func fileLengthDiagnostic(n int, opts Options) (Diagnostic, bool) {
	switch {
	case n > opts.FileLengthWarn:
		return Diagnostic{
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("File is very long (%d lines). Break it into smaller modules", n),
		}, true
	case n > opts.FileLengthInfo:
		return Diagnostic{
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("File is long (%d lines). Consider breaking code into smaller functions", n),
		}, true
	}
	return Diagnostic{}, false
}

// CountLines reports how many lines the line scanner sees in src, using the
// same splitting rules the length checks use.
func CountLines(src string) int {
	return len(sourceLines(src))
}

// sourceLines splits source text into lines. A trailing final newline does
// not count as an extra line; empty source has none.
func sourceLines(src string) []string {
	if src == "" {
		return nil
	}
	lines := strings.Split(src, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// splitComment separates a line into its code part and the comment text
// after the first '#'. A '#' inside a string literal is accepted as
// heuristic noise here.
func splitComment(line string) (code, comment string, hasComment bool) {
	i := strings.Index(line, "#")
	if i < 0 {
		return line, "", false
	}
	return line[:i], strings.TrimPrefix(line[i:], "#"), true
}

func markerIn(comment string) string {
	upper := strings.ToUpper(comment)
	for _, token := range markerTokens {
		if strings.Contains(upper, token) {
			return token
		}
	}
	return ""
}
