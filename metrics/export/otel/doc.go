// Package otel exports goSession engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter. Each
// latency histogram becomes a cumulative bucket gauge with an "le" attribute,
// a count and an approximate sum, matching the Prometheus layout. One callback
// reads [goSession.Engine.MetricsSnapshot] on every collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
