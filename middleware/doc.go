// Package middleware adapts the docportal Route Gate to net/http.
//
// [RequireSession] and [RequireAdmin] wrap a handler with a Gate policy. The
// Gate decides; this package only translates its verdict into a status code,
// a redirect or a JSON rejection, and attaches the admitted snapshot to the
// request context.
package middleware
