package model

import "context"

// ContextManager carries per-request values through a call chain.
type ContextManager interface {
	SetRequestIDToContext(ctx context.Context, requestID string) context.Context
	GetRequestIDFromContext(ctx context.Context) (string, bool)
	SetCallerToContext(ctx context.Context, caller string) context.Context
	GetCallerFromContext(ctx context.Context) (string, bool)
}
