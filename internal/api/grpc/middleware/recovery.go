package middleware

import (
	"context"
	"runtime/debug"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Recovery turns handler panics into Internal errors.
type Recovery struct {
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewRecovery creates a new Recovery middleware.
func NewRecovery(contextManager model.ContextManager, logger *logger.Logger) *Recovery {
	return &Recovery{contextManager: contextManager, logger: logger}
}

// HandlePanic is a recovery.RecoveryHandlerFuncContext.
func (r *Recovery) HandlePanic(ctx context.Context, p any) error {
	requestID, _ := r.contextManager.GetRequestIDFromContext(ctx)

	r.logger.Error("gRPC handler panicked",
		"request_id", requestID,
		"panic", p,
		"stack", string(debug.Stack()))

	return status.Error(codes.Internal, "internal server error")
}
