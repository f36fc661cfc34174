// Package session persists the local auth backend's refresh sessions in
// Redis.
//
// Each session is a compact binary blob keyed by session id, with a per-user
// set index. Refresh-token rotation is a compare-and-swap in a Lua script: a
// presented hash that does not match the stored one deletes the session, so
// a replayed refresh token ends the session for both holders.
//
// The package does not issue access tokens or verify passwords.
package session
