// # internal/analyzer/diagnostic.go
package analyzer

import (
	"encoding/json"
	"fmt"
)

// Severity classifies a finding by urgency. The numeric order is the sort
// order: lower values are more urgent.
type Severity int

const (
	SeverityError Severity = iota
	SeverityBug
	SeverityWarning
	SeverityInfo
)

var severityNames = map[Severity]string{
	SeverityError:   "ERROR",
	SeverityBug:     "BUG",
	SeverityWarning: "WARNING",
	SeverityInfo:    "INFO",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// IsMoreUrgentThan reports whether s outranks other.
func (s Severity) IsMoreUrgentThan(other Severity) bool {
	return s < other
}

func (s Severity) MarshalJSON() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity maps a wire name back to its Severity. Unknown names are an
// error, never silently coerced.
func ParseSeverity(name string) (Severity, error) {
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// Diagnostic is a single finding. Line is 1-based and nil for findings that
// concern the whole file; nil marshals as JSON null to match the wire format.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Line     *int     `json:"line"`
	Message  string   `json:"message"`
}

// lineAt returns a pointer to a copy of n, for diagnostics anchored to a line.
func lineAt(n int) *int {
	return &n
}

// Summary tallies a report's issues by severity.
type Summary struct {
	Bugs     int `json:"bugs"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
	Errors   int `json:"errors"`
	Total    int `json:"total"`
}

// Report is the engine's complete answer for one source text: all issues in
// presentation order plus their tally. Total always equals len(Issues).
type Report struct {
	Issues  []Diagnostic `json:"issues"`
	Summary Summary      `json:"summary"`
}
