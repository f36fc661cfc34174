// Package authstate holds the client-side session state shared by the
// backend implementations: the persisted session blob in the vendor layout
// and the auth-event fan-out.
package authstate
