// Package internal holds token and identifier helpers shared by the
// in-process backend.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and sinks)
//   - authstate: latest-value session holder and subscriber fan-out
//   - bootstrap: config loading and process wiring for cmd/docportal
//   - metrics: lock-free counters and latency histograms
//   - rate: Redis-backed fixed-window limiter for sign-in attempts
package internal
