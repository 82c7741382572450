package transaction

import "context"

type contextKey struct{}

// FromContext retrieves the active transaction from the context
func FromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(contextKey{}).(*Transaction)
	return tx, ok
}

// WithContext returns a new context carrying the transaction
func WithContext(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, contextKey{}, tx)
}

// ExecutorFrom returns the transaction carried by ctx, or fallback when there is none
func ExecutorFrom(ctx context.Context, fallback Executor) Executor {
	if tx, ok := FromContext(ctx); ok {
		return tx
	}
	return fallback
}
