package rules

import (
	"context"
	"fmt"

	"github.com/modguard/modguard/pkg/domain"
	"github.com/modguard/modguard/pkg/rules/expr"
)

// ExpressionRule denies an edge when its predicate matches. Reason is the
// operator-chosen identifier carried into the violation detail.
type ExpressionRule struct {
	Reason    string
	Predicate *expr.Predicate
}

// Options control Engine construction.
type Options struct {
	// Layers declares the layer ordering from highest to lowest rank.
	// Empty selects domain.DefaultLayerOrder.
	Layers []domain.Layer
	// Expressions are configured deny rules applied after the builtins.
	Expressions []ExpressionRule
	// Policy is an optional Rego backend applied last. Nil disables it.
	Policy *PolicyEngine
}

// Engine evaluates edges deterministically from module tags and the fixed
// rule set.
type Engine struct {
	ranks  map[domain.Layer]int
	exprs  []ExpressionRule
	policy *PolicyEngine
}

// NewEngine constructs an Engine for the supplied options.
func NewEngine(opts Options) (*Engine, error) {
	layers := opts.Layers
	if len(layers) == 0 {
		layers = domain.DefaultLayerOrder
	}

	// Rank 0 is the highest layer; deeper layers get larger ranks.
	ranks := make(map[domain.Layer]int, len(layers))
	for i, l := range layers {
		if _, dup := ranks[l]; dup {
			return nil, fmt.Errorf("%w: layer %q declared twice", domain.ErrConfigInvalid, l)
		}
		ranks[l] = i
	}

	return &Engine{
		ranks:  ranks,
		exprs:  opts.Expressions,
		policy: opts.Policy,
	}, nil
}

// Rank returns the numeric rank of a layer, higher layers ranking lower.
// Unknown layers return -1; config validation should prevent that case.
func (e *Engine) Rank(l domain.Layer) int {
	r, ok := e.ranks[l]
	if !ok {
		return -1
	}
	return r
}

// Evaluate decides whether the edge from -> to is allowed. The result is
// deterministic given the module tags and the engine's rule set. An error
// means a rule itself failed to evaluate (bad expression scope, Rego
// runtime failure), not that the edge is denied.
func (e *Engine) Evaluate(ctx context.Context, from, to domain.Module) (domain.Decision, error) {
	if from.Name == to.Name {
		return domain.Decision{
			Allowed: false,
			Reason:  domain.ReasonSelfDependency,
			Detail:  fmt.Sprintf("module %s depends on itself", from.Name),
		}, nil
	}

	if from.Domain == to.Domain {
		fromRank, toRank := e.Rank(from.Layer), e.Rank(to.Layer)
		if toRank < fromRank {
			return domain.Decision{
				Allowed: false,
				Reason:  domain.ReasonLayerOrder,
				Detail: fmt.Sprintf("%s layer %s (rank %d) may not import higher layer %s (rank %d)",
					from.Name, from.Layer, fromRank, to.Layer, toRank),
			}, nil
		}
	} else if !to.Shared() {
		return domain.Decision{
			Allowed: false,
			Reason:  domain.ReasonDomainPrivate,
			Detail: fmt.Sprintf("%s (domain %s) may not import %s: private to domain %s",
				from.Name, from.Domain, to.Name, to.Domain),
		}, nil
	}

	scope := e.edgeScope(from, to)
	lookup := expr.MapLookup(scope)

	for _, rule := range e.exprs {
		matched, err := rule.Predicate.Match(lookup)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("%w: rule %q: %v", domain.ErrRuleInvalid, rule.Reason, err)
		}
		if matched {
			return domain.Decision{
				Allowed: false,
				Reason:  domain.ReasonExpressionRule,
				Detail:  fmt.Sprintf("%s: matched %q", rule.Reason, rule.Predicate.Source()),
			}, nil
		}
	}

	if e.policy != nil {
		denials, err := e.policy.Deny(ctx, scope)
		if err != nil {
			return domain.Decision{}, err
		}
		if len(denials) > 0 {
			return domain.Decision{
				Allowed: false,
				Reason:  domain.ReasonPolicyDeny,
				Detail:  denials[0],
			}, nil
		}
	}

	return domain.Decision{Allowed: true, Reason: domain.ReasonAllowed}, nil
}

// edgeScope flattens the edge's module tags into the attribute namespace
// shared by expression rules and Rego input.
func (e *Engine) edgeScope(from, to domain.Module) map[string]any {
	return map[string]any{
		"from.name":       from.Name,
		"from.domain":     from.Domain,
		"from.layer":      string(from.Layer),
		"from.rank":       e.Rank(from.Layer),
		"from.visibility": string(from.Visibility),
		"from.shared":     from.Shared(),
		"to.name":         to.Name,
		"to.domain":       to.Domain,
		"to.layer":        string(to.Layer),
		"to.rank":         e.Rank(to.Layer),
		"to.visibility":   string(to.Visibility),
		"to.shared":       to.Shared(),
		"cross_domain":    from.Domain != to.Domain,
	}
}
