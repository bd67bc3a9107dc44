package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modguard/modguard/pkg/domain"
)

func sampleReport() *domain.CheckReport {
	return &domain.CheckReport{
		RunID:     "run-1",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:  "1ms",
		Modules:   3,
		Edges:     2,
		Violations: []domain.Violation{
			{
				Edge: domain.DependencyEdge{From: "boarding-feature", To: "checkin-domain"},
				From: domain.Module{Name: "boarding-feature", Domain: "boarding", Layer: domain.LayerFeature, Visibility: domain.VisibilityPrivate},
				To:   domain.Module{Name: "checkin-domain", Domain: "checkin", Layer: domain.LayerDomain, Visibility: domain.VisibilityPrivate},
				Decision: domain.Decision{
					Allowed: false,
					Reason:  domain.ReasonDomainPrivate,
					Detail:  "boarding-feature (domain boarding) may not import checkin-domain: private to domain checkin",
				},
			},
		},
		Findings: []domain.Finding{
			{Kind: "cycle", Message: "a -> b -> a"},
		},
	}
}

func TestLines_Order(t *testing.T) {
	violations := []domain.Violation{
		{Edge: domain.DependencyEdge{From: "x", To: "y"}, Decision: domain.Decision{Reason: domain.ReasonLayerOrder}},
		{Edge: domain.DependencyEdge{From: "a", To: "b"}, Decision: domain.Decision{Reason: domain.ReasonSelfDependency}},
	}

	lines := Lines(violations)
	if len(lines) != 2 {
		t.Fatalf("Lines() len = %d, want 2", len(lines))
	}
	// report order follows input order, not lexical order
	if !strings.HasPrefix(lines[0], "x -> y") || !strings.HasPrefix(lines[1], "a -> b") {
		t.Fatalf("Lines() order wrong: %v", lines)
	}
}

func TestWrite_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), FormatText); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"boarding-feature -> checkin-domain: denied (domain_private)",
		"note: cycle: a -> b -> a",
		"FAIL: 3 modules, 2 edges, 1 violations",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWrite_TextClean(t *testing.T) {
	rep := sampleReport()
	rep.Violations = nil

	var buf bytes.Buffer
	if err := Write(&buf, rep, FormatText); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "OK: 3 modules, 2 edges, 0 violations") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), FormatJSON); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var decoded domain.CheckReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded.Violations) != 1 {
		t.Fatalf("decoded violations = %d, want 1", len(decoded.Violations))
	}
	if decoded.Violations[0].Decision.Reason != domain.ReasonDomainPrivate {
		t.Fatalf("reason = %s", decoded.Violations[0].Decision.Reason)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Fatalf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Fatalf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); !errors.Is(err, domain.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}
