package middleware

import "context"

// Unexported key types keep other packages from colliding with these values.
type (
	userIDKey    struct{}
	sessionIDKey struct{}
)

func withValue[K any](ctx context.Context, key K, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringValue[K any](ctx context.Context, key K) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// WithUserID records the authenticated shopper. OptionalAuth sets it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, userIDKey{})
}

// WithSessionID records the guest session token. GuestSession sets it.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withValue(ctx, sessionIDKey{}, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, sessionIDKey{})
}
