// Package httpapi exposes the portal over HTTP.
//
// The router serves the session snapshot (plain and as a websocket stream),
// the login, logout and sign-up operations, the public catalog views and the
// admin catalog editor. Admin routes sit behind middleware.RequireAdmin.
// Every JSON response uses the envelope
//
//	{"status": "success", "data": ...}
//	{"status": "error", "code": "...", "message": "..."}
//
// and error codes are stable.
package httpapi
