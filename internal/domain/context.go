package domain

import "context"

type contextKey string

const sessionIDKey contextKey = "session_id"

// WithSessionID attaches a session identifier to the context. The agent sets
// it per turn; tool middleware picks it up for log correlation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFrom extracts the session identifier, if any.
func SessionIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionIDKey).(string)
	return id, ok
}
