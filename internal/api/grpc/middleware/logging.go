package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Logging is a unary interceptor that tags each request with an id and logs its outcome.
type Logging struct {
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(contextManager model.ContextManager, logger *logger.Logger) *Logging {
	return &Logging{contextManager: contextManager, logger: logger}
}

// HandleGRPC keeps a caller supplied x-request-id or assigns a new one, then
// logs method name, duration and status for the request.
func (l *Logging) HandleGRPC(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	requestID, ok := l.contextManager.GetRequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
		ctx = l.contextManager.SetRequestIDToContext(ctx, requestID)
	}

	l.logger.Debug("gRPC request started",
		"method", info.FullMethod,
		"request_id", requestID)

	resp, err := handler(ctx, req)

	duration := time.Since(start)

	statusCode := codes.OK
	if err != nil {
		if st, ok := status.FromError(err); ok {
			statusCode = st.Code()
		} else {
			statusCode = codes.Internal
		}
	}

	l.logger.Info("gRPC request completed",
		"method", info.FullMethod,
		"request_id", requestID,
		"duration_ms", duration.Milliseconds(),
		"status", statusCode.String())

	if err != nil && isServerFault(statusCode) {
		l.logger.Error("gRPC request failed",
			"method", info.FullMethod,
			"request_id", requestID,
			"error", err.Error(),
			"status", statusCode.String())
	}

	return resp, err
}

// isServerFault reports codes that point at the service rather than the caller.
func isServerFault(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unavailable, codes.Unknown, codes.DataLoss, codes.DeadlineExceeded:
		return true
	}
	return false
}
