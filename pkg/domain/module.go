package domain

import (
	"fmt"
	"time"
)

// Layer categorises a module's responsibility. Layers form a strict
// ordering: feature > ui > api > domain > util. A module may only import
// same-or-lower layers within its own domain.
type Layer string

// Known layers, highest first.
const (
	LayerFeature Layer = "feature"
	LayerUI      Layer = "ui"
	LayerAPI     Layer = "api"
	LayerDomain  Layer = "domain"
	LayerUtil    Layer = "util"
)

// DefaultLayerOrder lists the built-in layers from highest to lowest rank.
// Config may re-declare the ordering; this is the fallback.
var DefaultLayerOrder = []Layer{LayerFeature, LayerUI, LayerAPI, LayerDomain, LayerUtil}

// Visibility controls whether a module may be imported from other domains.
type Visibility string

const (
	// VisibilityShared marks a module importable from any domain.
	VisibilityShared Visibility = "shared"
	// VisibilityPrivate restricts a module to its own domain.
	VisibilityPrivate Visibility = "private"
)

// Module is a declared unit of code ownership. Modules are immutable once
// registered.
type Module struct {
	Name       string     `json:"name" yaml:"name"`
	Domain     string     `json:"domain" yaml:"domain"`
	Layer      Layer      `json:"layer" yaml:"layer"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
}

// Validate checks that the module declaration is well formed against the
// supplied layer ordering.
func (m Module) Validate(layers []Layer) error {
	if m.Name == "" {
		return fmt.Errorf("%w: module name is required", ErrConfigInvalid)
	}
	if m.Domain == "" {
		return fmt.Errorf("%w: module %q has no domain", ErrConfigInvalid, m.Name)
	}
	if m.Visibility != VisibilityShared && m.Visibility != VisibilityPrivate {
		return fmt.Errorf("%w: module %q has unknown visibility %q", ErrConfigInvalid, m.Name, m.Visibility)
	}
	for _, l := range layers {
		if m.Layer == l {
			return nil
		}
	}
	return fmt.Errorf("%w: module %q has unknown layer %q", ErrConfigInvalid, m.Name, m.Layer)
}

// Shared reports whether the module is importable across domain boundaries.
func (m Module) Shared() bool {
	return m.Visibility == VisibilityShared
}

// DependencyEdge is a directed import relationship: From imports To.
type DependencyEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

func (e DependencyEdge) String() string {
	return e.From + " -> " + e.To
}

// ReasonCode identifies why an edge was allowed or denied. Codes are stable
// and machine readable.
type ReasonCode string

const (
	// ReasonAllowed is the single allow reason emitted by the builtin rules.
	ReasonAllowed ReasonCode = "allowed"
	// ReasonSelfDependency denies a module importing itself.
	ReasonSelfDependency ReasonCode = "self_dependency"
	// ReasonLayerOrder denies a same-domain import of a higher layer.
	ReasonLayerOrder ReasonCode = "layer_order"
	// ReasonDomainPrivate denies a cross-domain import of a private module.
	ReasonDomainPrivate ReasonCode = "domain_private"
	// ReasonExpressionRule denies an edge matched by a configured expression
	// rule; the rule's own reason string is carried in Decision.Detail.
	ReasonExpressionRule ReasonCode = "expression_rule"
	// ReasonPolicyDeny denies an edge rejected by a Rego policy module.
	ReasonPolicyDeny ReasonCode = "policy_deny"
)

// Decision is the outcome of evaluating a single edge.
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  ReasonCode `json:"reason"`
	// Detail carries rule-specific context, e.g. the layer ranks compared or
	// the name of the expression rule that matched.
	Detail string `json:"detail,omitempty"`
}

// Violation pairs a denied edge with the modules involved and the decision.
type Violation struct {
	Edge     DependencyEdge `json:"edge"`
	From     Module         `json:"from"`
	To       Module         `json:"to"`
	Decision Decision       `json:"decision"`
}

// Finding is an advisory observation that does not fail a check, such as a
// dependency cycle.
type Finding struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CheckReport is the result of one full evaluation run over the graph.
type CheckReport struct {
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	Duration   string      `json:"duration"`
	Modules    int         `json:"modules"`
	Edges      int         `json:"edges"`
	Violations []Violation `json:"violations"`
	Findings   []Finding   `json:"findings,omitempty"`
}

// Clean reports whether the run found no violations.
func (r *CheckReport) Clean() bool {
	return len(r.Violations) == 0
}
