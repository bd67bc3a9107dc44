package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/modguard/modguard/pkg/domain"
)

func TestRecordCheck(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
	})

	ResetMetricsForTest()

	RecordCheck(ctx, CheckMetrics{
		RunID:   "run-1",
		Modules: 4,
		Edges:   6,
		Violations: []domain.Violation{
			{
				From:     domain.Module{Name: "a", Domain: "boarding"},
				To:       domain.Module{Name: "b", Domain: "checkin"},
				Decision: domain.Decision{Reason: domain.ReasonDomainPrivate},
			},
		},
		Duration: 3 * time.Millisecond,
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	metrics := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			metrics[m.Name] = m
		}
	}

	runs, ok := metrics["modguard.check.runs_total"]
	if !ok {
		t.Fatalf("missing modguard.check.runs_total metric")
	}
	runData, ok := runs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("runs_total has unexpected data type %T", runs.Data)
	}
	if len(runData.DataPoints) != 1 || runData.DataPoints[0].Value != 1 {
		t.Fatalf("unexpected runs_total datapoints: %+v", runData.DataPoints)
	}

	if _, ok := metrics["modguard.check.violations_total"]; !ok {
		t.Fatalf("missing modguard.check.violations_total metric")
	}
	if _, ok := metrics["modguard.check.duration_ms"]; !ok {
		t.Fatalf("missing modguard.check.duration_ms metric")
	}
}

func TestPromMetrics_ObserveReport(t *testing.T) {
	m := NewPromMetrics()

	m.ObserveReport(&domain.CheckReport{
		Modules: 3,
		Edges:   5,
		Violations: []domain.Violation{
			{Decision: domain.Decision{Reason: domain.ReasonLayerOrder}},
			{Decision: domain.Decision{Reason: domain.ReasonLayerOrder}},
		},
	})
	m.ObserveReload(true)
	m.ObserveReload(false)

	expected := `
# HELP modguard_last_check_violations Violations found by the most recent check run
# TYPE modguard_last_check_violations gauge
modguard_last_check_violations 2
`
	if err := promtest.CollectAndCompare(m.lastViolations, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected gauge value: %v", err)
	}

	if got := promtest.ToFloat64(m.violationsTotal.WithLabelValues(string(domain.ReasonLayerOrder))); got != 2 {
		t.Fatalf("violations_total = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.checksTotal.WithLabelValues("violations")); got != 1 {
		t.Fatalf("checks_total{violations} = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.configReloads.WithLabelValues("failure")); got != 1 {
		t.Fatalf("config_reloads_total{failure} = %v, want 1", got)
	}
}
