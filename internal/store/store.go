package store

import "context"

type contextKey string

const storeContextKey contextKey = "store.id"

// WithStore stores the store identifier inside the context.
func WithStore(ctx context.Context, storeID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, storeContextKey, storeID)
}

// FromContext extracts the store identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	storeID, ok := ctx.Value(storeContextKey).(string)
	if !ok {
		return "", false
	}
	return storeID, storeID != ""
}
