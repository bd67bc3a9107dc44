package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/modguard/modguard/pkg/domain"
)

var (
	metricsOnce       sync.Once
	metricsInitErr    error
	checkRunCounter   metric.Int64Counter
	edgeCounter       metric.Int64Counter
	violationCounter  metric.Int64Counter
	checkRunHistogram metric.Float64Histogram
)

// CheckMetrics captures the fields recorded after one check run.
type CheckMetrics struct {
	RunID      string
	Modules    int
	Edges      int
	Violations []domain.Violation
	Duration   time.Duration
}

// RecordCheck emits counters and a latency histogram describing one run.
func RecordCheck(ctx context.Context, m CheckMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	outcome := "clean"
	if len(m.Violations) > 0 {
		outcome = "violations"
	}
	runAttrs := []attribute.KeyValue{attribute.String("check.outcome", outcome)}

	checkRunCounter.Add(ctx, 1, metric.WithAttributes(runAttrs...))
	edgeCounter.Add(ctx, int64(m.Edges), metric.WithAttributes(runAttrs...))

	for _, v := range m.Violations {
		violationCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("violation.reason", string(v.Decision.Reason)),
			attribute.String("violation.from_domain", v.From.Domain),
			attribute.String("violation.to_domain", v.To.Domain),
		))
	}

	if m.Duration > 0 {
		checkRunHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(runAttrs...))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("modguard.check")

		var err error
		if checkRunCounter, err = meter.Int64Counter(
			"modguard.check.runs_total",
			metric.WithDescription("Total check runs by outcome"),
		); err != nil {
			metricsInitErr = err
			return
		}
		if edgeCounter, err = meter.Int64Counter(
			"modguard.check.edges_total",
			metric.WithDescription("Total dependency edges evaluated"),
		); err != nil {
			metricsInitErr = err
			return
		}
		if violationCounter, err = meter.Int64Counter(
			"modguard.check.violations_total",
			metric.WithDescription("Total violations by reason and domain pair"),
		); err != nil {
			metricsInitErr = err
			return
		}
		if checkRunHistogram, err = meter.Float64Histogram(
			"modguard.check.duration_ms",
			metric.WithDescription("Check run duration in milliseconds"),
		); err != nil {
			metricsInitErr = err
			return
		}
	})
	return metricsInitErr
}
