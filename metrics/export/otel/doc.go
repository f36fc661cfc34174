// Package otel exposes the portal's in-process metrics as OpenTelemetry
// observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per portal counter,
// one Int64ObservableGauge per latency bucket, and the session state gauges.
// A single callback reads [docportal.Store.MetricsSnapshot] on each
// collection cycle. Callers own the MeterProvider.
package otel
