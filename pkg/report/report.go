// Package report renders check results for humans and machines. Rendering
// has no side effects; callers decide where the output goes.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/modguard/modguard/pkg/domain"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name from config or flags.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown report format %q", domain.ErrConfigInvalid, name)
	}
}

// Lines returns one human-readable description per violation, in report
// order. Ordering follows the graph's edge insertion order and is stable
// across runs with the same input.
func Lines(violations []domain.Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, describe(v))
	}
	return out
}

func describe(v domain.Violation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s: denied (%s)", v.Edge.From, v.Edge.To, v.Decision.Reason)
	if v.Decision.Detail != "" {
		fmt.Fprintf(&b, ": %s", v.Decision.Detail)
	}
	fmt.Fprintf(&b, " [%s/%s -> %s/%s %s]",
		v.From.Domain, v.From.Layer, v.To.Domain, v.To.Layer, v.To.Visibility)
	return b.String()
}

// Write renders the report to w in the requested format.
func Write(w io.Writer, rep *domain.CheckReport, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		return writeText(w, rep)
	}
}

func writeText(w io.Writer, rep *domain.CheckReport) error {
	for _, line := range Lines(rep.Violations) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	for _, f := range rep.Findings {
		if _, err := fmt.Fprintf(w, "note: %s: %s\n", f.Kind, f.Message); err != nil {
			return err
		}
	}

	status := "OK"
	if !rep.Clean() {
		status = "FAIL"
	}
	_, err := fmt.Fprintf(w, "%s: %d modules, %d edges, %d violations (run %s in %s)\n",
		status, rep.Modules, rep.Edges, len(rep.Violations), rep.RunID, rep.Duration)
	return err
}
