package accessctx

import (
	"context"

	"github.com/nkiryanov/paywall/internal/service/access"
)

type ctxKey string

const decisionKey ctxKey = "access-decision"

// Create a new context with the gate decision
func New(ctx context.Context, d access.Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// Extract the gate decision from the context
func FromContext(ctx context.Context) (access.Decision, bool) {
	d, ok := ctx.Value(decisionKey).(access.Decision)
	return d, ok
}
