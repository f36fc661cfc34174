package docportal

import "context"

type snapshotContextKey struct{}
type requestIDContextKey struct{}

// WithSnapshot attaches the Session snapshot a request was admitted with.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotContextKey{}, s)
}

// SnapshotFromContext returns the snapshot attached by WithSnapshot.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	if ctx == nil {
		return Snapshot{}, false
	}
	s, ok := ctx.Value(snapshotContextKey{}).(Snapshot)
	return s, ok
}

// WithRequestID attaches a correlation id used in logs and audit metadata.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the id attached by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
