// Package prometheus exposes goSession engine metrics through
// client_golang.
//
// [Exporter] is a prometheus.Collector: register it with any registry, or
// mount [Exporter.Handler] directly. Counter names are gosession_*_total and
// the latency histograms are gosession_*_latency_seconds. Histogram sums are
// estimated from bucket midpoints.
//
// # What this package must NOT do
//
//   - Mutate engine state.
package prometheus
