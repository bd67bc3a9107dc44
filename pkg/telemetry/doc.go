// Package telemetry wires modguard's observability: an OpenTelemetry tracer
// provider for check runs, OTel metric instruments for edge evaluations, and
// a Prometheus registry served by watch mode.
package telemetry
