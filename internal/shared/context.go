package shared

import "context"

type operatorContextKey struct{}

// ContextWithOperator stores the acting operator id in context.
func ContextWithOperator(ctx context.Context, operatorID int64) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, operatorID)
}

// OperatorFromContext extracts the acting operator id from context.
func OperatorFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(operatorContextKey{}).(int64)
	return id, ok && id > 0
}
