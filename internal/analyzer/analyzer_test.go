// # internal/analyzer/analyzer_test.go
package analyzer

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func TestAnalyzeCleanSource(t *testing.T) {
	src := "def greet(name):\n" +
		"    \"\"\"Return a greeting.\"\"\"\n" +
		"    return \"Hello, \" + name\n" +
		"\n" +
		"\n" +
		"greet(\"world\")\n"

	rep := Analyze(context.Background(), []byte(src), Options{})

	if len(rep.Issues) != 1 {
		t.Fatalf("got %d issues, want the all-clear finding: %+v", len(rep.Issues), rep.Issues)
	}
	d := rep.Issues[0]
	if d.Severity != SeverityInfo || d.Line != nil || d.Message != "No obvious issues found" {
		t.Errorf("all-clear finding = %+v", d)
	}
	if rep.Summary != (Summary{Info: 1, Total: 1}) {
		t.Errorf("summary = %+v", rep.Summary)
	}
}

func TestAnalyzeEmptySource(t *testing.T) {
	for _, src := range []string{"", "\n", "\n\n\n", "   \n\t\n"} {
		rep := Analyze(context.Background(), []byte(src), Options{})
		if len(rep.Issues) != 1 || rep.Issues[0].Message != "No obvious issues found" {
			t.Errorf("source %q: issues = %+v", src, rep.Issues)
		}
	}
}

func TestAnalyzeSyntaxError(t *testing.T) {
	src := "print('hi')\ndef broken(:\n    pass\n"

	rep := Analyze(context.Background(), []byte(src), Options{})

	if len(rep.Issues) != 2 {
		t.Fatalf("got %d issues, want syntax error plus line-scan warning: %+v", len(rep.Issues), rep.Issues)
	}

	syntax := rep.Issues[0]
	if syntax.Severity != SeverityError {
		t.Errorf("first issue severity = %v, want ERROR", syntax.Severity)
	}
	if syntax.Message != "Syntax error: invalid syntax" {
		t.Errorf("syntax message = %q", syntax.Message)
	}
	if syntax.Line == nil || *syntax.Line < 1 {
		t.Errorf("syntax error should carry a failure line, got %v", syntax.Line)
	}

	warn := rep.Issues[1]
	if warn.Severity != SeverityWarning || warn.Line == nil || *warn.Line != 1 {
		t.Errorf("line scan should still run on unparsed source: %+v", warn)
	}

	if rep.Summary.Errors != 1 || rep.Summary.Warnings != 1 || rep.Summary.Total != 2 {
		t.Errorf("summary = %+v", rep.Summary)
	}
}

const reviewFixture = "import os\n" +
	"import sys\n" +
	"\n" +
	"\n" +
	"def process(data):\n" +
	"    result = []\n" +
	"    temp = 42\n" +
	"    for item in data:\n" +
	"        result.append(item)\n" +
	"    print(os.getcwd())\n" +
	"    return result\n"

var reviewFixtureIssues = []Diagnostic{
	{Severity: SeverityBug, Line: lineAt(7), Message: "Variable 'temp' is assigned but never used"},
	{Severity: SeverityWarning, Line: lineAt(2), Message: "Import 'sys' is never used"},
	{Severity: SeverityWarning, Line: lineAt(10), Message: "Avoid using print() in production code"},
	{Severity: SeverityInfo, Line: lineAt(5), Message: "Function 'process' is missing a docstring"},
	{Severity: SeverityInfo, Line: lineAt(7), Message: "Magic number 42. Consider replacing it with a named constant"},
}

func TestAnalyzeReviewFixture(t *testing.T) {
	rep := Analyze(context.Background(), []byte(reviewFixture), Options{})

	if !reflect.DeepEqual(rep.Issues, reviewFixtureIssues) {
		t.Errorf("issues mismatch\ngot:  %s\nwant: %s", formatIssues(rep.Issues), formatIssues(reviewFixtureIssues))
	}
	want := Summary{Bugs: 1, Warnings: 2, Info: 2, Errors: 0, Total: 5}
	if rep.Summary != want {
		t.Errorf("summary = %+v, want %+v", rep.Summary, want)
	}
}

func formatIssues(issues []Diagnostic) string {
	var sb strings.Builder
	for _, d := range issues {
		line := "-"
		if d.Line != nil {
			line = strconv.Itoa(*d.Line)
		}
		fmt.Fprintf(&sb, "[%s %s %q] ", d.Severity, line, d.Message)
	}
	return sb.String()
}

func TestAnalyzeThresholdOverrides(t *testing.T) {
	t.Run("function length", func(t *testing.T) {
		src := "def tiny():\n" +
			"    \"\"\"Doc.\"\"\"\n" +
			"    a = 1\n" +
			"    return a\n"

		rep := Analyze(context.Background(), []byte(src), Options{FuncLengthInfo: 3})

		if len(rep.Issues) != 1 {
			t.Fatalf("issues = %+v", rep.Issues)
		}
		d := rep.Issues[0]
		if d.Severity != SeverityInfo || d.Message != "Function 'tiny' is 4 lines long. Consider splitting it" {
			t.Errorf("unexpected finding: %+v", d)
		}
	})

	t.Run("loop depth", func(t *testing.T) {
		src := "for a in xs:\n    for b in a:\n        use(b)\n"

		rep := Analyze(context.Background(), []byte(src), Options{MaxLoopDepth: 2})

		if len(rep.Issues) != 1 {
			t.Fatalf("issues = %+v", rep.Issues)
		}
		d := rep.Issues[0]
		if d.Severity != SeverityWarning || d.Line == nil || *d.Line != 2 {
			t.Errorf("unexpected finding: %+v", d)
		}
		if d.Message != "Loops nested 2 levels deep. Extract the inner loops into helper functions" {
			t.Errorf("message = %q", d.Message)
		}
	})

	t.Run("zero options mean defaults", func(t *testing.T) {
		src := "for a in xs:\n    for b in a:\n        use(b)\n"

		rep := Analyze(context.Background(), []byte(src), Options{})

		if len(rep.Issues) != 1 || rep.Issues[0].Message != "No obvious issues found" {
			t.Errorf("two nested loops should pass at the default depth: %+v", rep.Issues)
		}
	})
}

func TestAnalyzeConcurrent(t *testing.T) {
	clean := []byte("def greet(name):\n    \"\"\"Doc.\"\"\"\n    return name\n")

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				rep := Analyze(context.Background(), []byte(reviewFixture), Options{})
				if !reflect.DeepEqual(rep.Issues, reviewFixtureIssues) {
					t.Errorf("concurrent run diverged: %s", formatIssues(rep.Issues))
					return
				}
				rep = Analyze(context.Background(), clean, Options{})
				if rep.Summary.Total != 1 || rep.Summary.Info != 1 {
					t.Errorf("concurrent clean run diverged: %+v", rep.Summary)
					return
				}
			}
		}()
	}
	wg.Wait()
}
