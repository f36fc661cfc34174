// Package rate implements fixed-window Redis counters that throttle the local
// auth backend: failed sign-ins per email and refreshes per session.
//
// Keys:
//   - <prefix>:si:<email>   failed sign-ins
//   - <prefix>:rf:<session> refresh calls
package rate
