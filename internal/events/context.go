package events

import (
	"context"
	"time"
)

type correlationKey struct{}

// WithCorrelationID attaches id to ctx so published events can carry it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Detached returns a context for publishing after the request has finished.
// It keeps the correlation id of parent but none of its cancellation.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := context.Background()
	if id := CorrelationID(parent); id != "" {
		ctx = WithCorrelationID(ctx, id)
	}
	return context.WithTimeout(ctx, timeout)
}
