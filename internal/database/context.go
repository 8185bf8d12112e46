package database

import (
	"context"
	"time"
)

type timeoutKey int

const (
	queryTimeoutKey timeoutKey = iota
	executeTimeoutKey
)

// WithQueryTimeout overrides the configured timeout of Executor.Query calls
// made with the returned context.
func WithQueryTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, queryTimeoutKey, d)
}

// WithExecuteTimeout overrides the configured timeout of Executor.Execute
// calls made with the returned context.
func WithExecuteTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, executeTimeoutKey, d)
}

// withStatementTimeout bounds ctx by the override stored under key, or by
// fallback when there is none.
func withStatementTimeout(ctx context.Context, key timeoutKey, fallback time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	d := fallback
	if v, ok := ctx.Value(key).(time.Duration); ok && v > 0 {
		d = v
	}
	return context.WithTimeout(ctx, d)
}
