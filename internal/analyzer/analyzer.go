// # internal/analyzer/analyzer.go

// Package analyzer reviews a single Python source text and produces a
// report of findings. It combines a text-level line scan, which always
// runs, with a battery of structural rules that run only when the source
// parses. The package keeps no state between calls and is safe for
// concurrent use.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reviewd/internal/observability"
	"reviewd/internal/parser"
)

// Options is the per-call tuning for threshold-based checks. The zero value
// behaves like DefaultOptions: unset fields fall back to the defaults.
type Options struct {
	FileLengthInfo int // lines before a file counts as long
	FileLengthWarn int // lines before a file counts as very long
	FuncLengthInfo int // lines before a function counts as long
	FuncLengthWarn int // lines before a function counts as very long
	MaxLoopDepth   int // for/while nesting depth that triggers a warning
}

func DefaultOptions() Options {
	return Options{
		FileLengthInfo: 80,
		FileLengthWarn: 200,
		FuncLengthInfo: 40,
		FuncLengthWarn: 80,
		MaxLoopDepth:   3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FileLengthInfo <= 0 {
		o.FileLengthInfo = def.FileLengthInfo
	}
	if o.FileLengthWarn <= 0 {
		o.FileLengthWarn = def.FileLengthWarn
	}
	if o.FuncLengthInfo <= 0 {
		o.FuncLengthInfo = def.FuncLengthInfo
	}
	if o.FuncLengthWarn <= 0 {
		o.FuncLengthWarn = def.FuncLengthWarn
	}
	if o.MaxLoopDepth <= 0 {
		o.MaxLoopDepth = def.MaxLoopDepth
	}
	return o
}

// Analyze reviews one source text. The line scan always contributes; when
// the source does not parse, the structural rules are skipped and a single
// ERROR finding reports the failure instead. There is no retry: a source is
// either analyzed parsed or unparsed, decided once per call. ctx carries
// the tracing span only.
func Analyze(ctx context.Context, source []byte, opts Options) Report {
	_, span := observability.Tracer.Start(ctx, "analyzer.Analyze")
	defer span.End()

	start := time.Now()
	opts = opts.withDefaults()

	diags := scanLines(string(source), opts)

	outcome := "parsed"
	res, err := parser.Parse(source)
	if err != nil {
		outcome = "unparsed"
		diags = append(diags, syntaxDiagnostic(err))
	} else {
		pass := &Pass{Root: res.Root, Source: source, Opts: opts}
		for _, rule := range Rules() {
			rule.Run(pass)
		}
		res.Close()
		diags = append(diags, pass.diags...)
	}

	report := buildReport(diags)

	observability.AnalysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	for _, issue := range report.Issues {
		observability.DiagnosticsTotal.WithLabelValues(issue.Severity.String()).Inc()
	}
	return report
}

func syntaxDiagnostic(err error) Diagnostic {
	var syntaxErr *parser.SyntaxError
	if errors.As(err, &syntaxErr) {
		d := Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Syntax error: %s", syntaxErr.Reason),
		}
		if syntaxErr.Line > 0 {
			d.Line = lineAt(syntaxErr.Line)
		}
		return d
	}
	return Diagnostic{
		Severity: SeverityError,
		Message:  fmt.Sprintf("Syntax error: %v", err),
	}
}
