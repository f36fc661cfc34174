// Package localbackend is a self-hosted docportal.Backend for development
// and tests. Accounts, refresh sessions and role records live in Redis;
// passwords are Argon2id hashes and access tokens are HS256 JWTs.
//
// The client half behaves like the hosted client: the session is persisted
// in a credstore.KV under an sb-*-auth-token key and auth-state changes are
// published with the same event kinds.
package localbackend
