// Package checker wires the registry, graph and rule engine into a full
// check run over a configuration snapshot.
package checker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/modguard/modguard/pkg/config"
	"github.com/modguard/modguard/pkg/domain"
	"github.com/modguard/modguard/pkg/graph"
	"github.com/modguard/modguard/pkg/registry"
	"github.com/modguard/modguard/pkg/rules"
	"github.com/modguard/modguard/pkg/rules/expr"
	"github.com/modguard/modguard/pkg/telemetry"
)

const tracerName = "modguard.checker"

// Checker runs boundary checks for one configuration snapshot. The rule
// engine (including compiled expressions and Rego policies) is built once
// at construction; Run may be called repeatedly.
type Checker struct {
	cfg    *config.Config
	engine *rules.Engine
	logger *slog.Logger
}

// New builds a Checker from the configuration. Expression and Rego rule
// compilation errors surface here.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Checker, error) {
	exprRules := make([]rules.ExpressionRule, 0, len(cfg.Rules.Expressions))
	for _, er := range cfg.Rules.Expressions {
		pred, err := expr.Compile(er.Deny)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", domain.ErrRuleInvalid, er.Reason, err)
		}
		exprRules = append(exprRules, rules.ExpressionRule{Reason: er.Reason, Predicate: pred})
	}

	var policy *rules.PolicyEngine
	sources, err := cfg.RegoSources()
	if err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		policy, err = rules.NewPolicyEngine(ctx, rules.PolicyOptions{
			Modules:         sources,
			CacheMaxEntries: cfg.Rules.CacheMaxEntries,
		})
		if err != nil {
			return nil, err
		}
	}

	engine, err := rules.NewEngine(rules.Options{
		Layers:      cfg.EffectiveLayers(),
		Expressions: exprRules,
		Policy:      policy,
	})
	if err != nil {
		return nil, err
	}

	return &Checker{cfg: cfg, engine: engine, logger: logger}, nil
}

// Run registers the declared modules, builds the dependency graph and
// evaluates every edge. Violations are aggregated into the report, never
// returned as errors; the error path covers duplicate or unknown modules
// and rule evaluation failures.
func (c *Checker) Run(ctx context.Context) (*domain.CheckReport, error) {
	runID := uuid.NewString()
	started := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "modguard.check", trace.WithAttributes(
		attribute.String("check.run_id", runID),
		attribute.Int("check.modules", len(c.cfg.Modules)),
	))
	defer span.End()

	reg := registry.New()
	for _, mc := range c.cfg.Modules {
		if err := reg.Register(mc.Module()); err != nil {
			return nil, err
		}
	}

	builder := graph.NewBuilder(reg)
	for _, mc := range c.cfg.Modules {
		for _, imp := range mc.Imports {
			if err := builder.AddEdge(mc.Name, imp); err != nil {
				return nil, err
			}
		}
	}

	var violations []domain.Violation
	for _, edge := range builder.Edges() {
		from, err := reg.Lookup(edge.From)
		if err != nil {
			return nil, err
		}
		to, err := reg.Lookup(edge.To)
		if err != nil {
			return nil, err
		}

		decision, err := c.engine.Evaluate(ctx, from, to)
		if err != nil {
			return nil, err
		}
		if !decision.Allowed {
			violations = append(violations, domain.Violation{
				Edge:     edge,
				From:     from,
				To:       to,
				Decision: decision,
			})
		}
	}

	var findings []domain.Finding
	for _, cycle := range builder.Cycles() {
		findings = append(findings, domain.Finding{
			Kind:    "cycle",
			Message: strings.Join(append(cycle, cycle[0]), " -> "),
		})
	}

	elapsed := time.Since(started)
	report := &domain.CheckReport{
		RunID:      runID,
		StartedAt:  started.UTC(),
		Duration:   elapsed.String(),
		Modules:    reg.Len(),
		Edges:      builder.Len(),
		Violations: violations,
		Findings:   findings,
	}

	span.SetAttributes(
		attribute.Int("check.edges", report.Edges),
		attribute.Int("check.violations", len(violations)),
	)

	telemetry.RecordCheck(ctx, telemetry.CheckMetrics{
		RunID:      runID,
		Modules:    report.Modules,
		Edges:      report.Edges,
		Violations: violations,
		Duration:   elapsed,
	})

	c.logger.Info("check run finished",
		"run_id", runID,
		"modules", report.Modules,
		"edges", report.Edges,
		"violations", len(violations),
		"duration", elapsed,
	)

	return report, nil
}
