// Package docportal provides the authentication/session core of the event
// documentation portal: a process-wide Session Store that tracks who is
// signed in, and a Route Gate that decides whether a privileged view may be
// rendered.
//
// The package is designed around one owned Session per process. [Store]
// methods are safe to call from multiple goroutines after construction
// through [Builder.Build]; all mutation funnels through the Store so that
// consumers only ever observe complete [Snapshot] values.
//
// # Architecture boundaries
//
// docportal is the public surface. It exposes [Store], [Gate], [Builder],
// [Config] and value types (Snapshot, Identity, Role, ...). The hosted
// backend is reached only through the [Backend] capability; concrete
// clients live in the supabase and localbackend packages. Audit dispatch and
// metric plumbing live under internal/ and are never exported directly.
//
// # What this package must NOT do
//
//   - Persist the Session itself (credentials belong to the backend client's
//     storage, which this package only inspects and clears).
//   - Call the backend while holding the Session lock.
//   - Treat a slow or unreachable backend as proof that a credential is
//     invalid. Only [ErrCredentialInvalid] clears stored credentials.
package docportal
