package registry

import (
	"errors"
	"testing"

	"github.com/modguard/modguard/pkg/domain"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()

	mod := domain.Module{
		Name:       "boarding-feature",
		Domain:     "boarding",
		Layer:      domain.LayerFeature,
		Visibility: domain.VisibilityPrivate,
	}

	if err := r.Register(mod); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := r.Lookup("boarding-feature")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got != mod {
		t.Fatalf("Lookup() = %+v, want %+v", got, mod)
	}
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	r := New()
	mod := domain.Module{Name: "shared-util", Domain: "shared", Layer: domain.LayerUtil, Visibility: domain.VisibilityShared}

	if err := r.Register(mod); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	err := r.Register(mod)
	if !errors.Is(err, domain.ErrDuplicateModule) {
		t.Fatalf("expected ErrDuplicateModule, got %v", err)
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := New()
	_, err := r.Lookup("missing")
	if !errors.Is(err, domain.ErrUnknownModule) {
		t.Fatalf("expected ErrUnknownModule, got %v", err)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		mod := domain.Module{Name: name, Domain: "d", Layer: domain.LayerUtil, Visibility: domain.VisibilityPrivate}
		if err := r.Register(mod); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, m := range list {
		if m.Name != want[i] {
			t.Fatalf("List()[%d] = %s, want %s", i, m.Name, want[i])
		}
	}
}
