// Package audit implements async dispatch of session lifecycle audit events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, role and metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. Which events to emit is
// decided by the Store and Gate in the root package.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import docportal or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
