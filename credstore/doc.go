// Package credstore provides key-value storage for persisted backend
// credentials: the Go counterpart of the browser's local storage.
//
// Backend clients write their session blob under a vendor-prefixed key; the
// session Store only lists and deletes keys through the narrower
// docportal.CredentialStorage view. Three implementations ship:
//
//   - [Memory]: process-local map, lost on restart.
//   - [Redis]: namespaced keys in Redis, listed with SCAN.
//   - [File]: a single JSON document on disk, written atomically.
//
// # What this package must NOT do
//
//   - Import docportal or interpret the stored values.
//   - Apply the credential-marker policy; callers decide what to delete.
package credstore
