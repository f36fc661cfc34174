// Package prometheus renders the portal's in-process metrics in Prometheus
// text exposition format.
//
// [NewPrometheusExporter] reads a *docportal.Store and exposes an
// [http.Handler] for mounting at /metrics. Counters are named
// docportal_*_total, the resolve latency histogram is
// docportal_resolve_latency_seconds, and three 0/1 gauges report the current
// session state. No global registry is involved.
package prometheus
