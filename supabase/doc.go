// Package supabase is the hosted backend client: GoTrue for authentication
// and PostgREST for the user-record table and the content catalog.
//
// The client persists its session as JSON under sb-<project-ref>-auth-token in
// a credstore.KV, the same layout the vendor's browser SDK keeps in local
// storage, and publishes auth-state changes to subscribers. Subscribers are
// always called without any client lock held.
package supabase
