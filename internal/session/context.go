package session

import "context"

type contextKey string

// snapshotKey carries the per-request session snapshot.
const snapshotKey contextKey = "omniwp_session"

// WithSnapshot returns a context carrying s. The API layer reads the token from
// it instead of the live store, so a request never sees a mid-flight change.
func WithSnapshot(ctx context.Context, s Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey, s)
}

// SnapshotFromContext extracts the snapshot. ok is false if none was attached.
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey).(Snapshot)
	return s, ok
}
