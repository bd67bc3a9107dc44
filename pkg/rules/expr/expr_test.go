package expr

import (
	"errors"
	"testing"
)

func TestPredicate_Match(t *testing.T) {
	lookup := MapLookup(map[string]any{
		"from.layer":      "ui",
		"from.domain":     "boarding",
		"to.layer":        "api",
		"to.domain":       "checkin",
		"to.visibility": "private",
		"to.shared":     false,
		"from.rank":     1,
		"to.rank":       2,
	})

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{
			name: "boolean literal",
			expr: "true",
			want: true,
		},
		{
			name: "layer pair match",
			expr: `from.layer == "ui" && to.layer == "api"`,
			want: true,
		},
		{
			name: "negation",
			expr: "!to.shared",
			want: true,
		},
		{
			name: "rank comparison",
			expr: "to.rank > from.rank",
			want: true,
		},
		{
			name: "or short circuit",
			expr: `from.domain == "checkin" || to.visibility == "private"`,
			want: true,
		},
		{
			name: "parenthesised",
			expr: `(from.layer == "ui" || from.layer == "feature") && to.domain != from.domain`,
			want: true,
		},
		{
			name: "no match",
			expr: `from.layer == "util"`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := pred.Match(lookup)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_SyntaxErrors(t *testing.T) {
	for _, exprSrc := range []string{"", "from.layer ==", "from.layer == )", `"unterminated`} {
		if _, err := Compile(exprSrc); !errors.Is(err, ErrSyntax) {
			t.Fatalf("Compile(%q) expected ErrSyntax, got %v", exprSrc, err)
		}
	}
}

func TestPredicate_MatchErrors(t *testing.T) {
	lookup := MapLookup(map[string]any{"from.layer": "ui"})

	pred, err := Compile(`nonexistent.attr == "x"`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := pred.Match(lookup); !errors.Is(err, ErrUnknownIdentifier) {
		t.Fatalf("expected ErrUnknownIdentifier, got %v", err)
	}

	pred, err = Compile("from.layer > 3")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := pred.Match(lookup); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}

	pred, err = Compile("from.layer")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if _, err := pred.Match(lookup); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch for non-boolean result, got %v", err)
	}
}
