package middleware

import (
	"context"
	"crypto/subtle"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

const (
	callerHeader  = "x-caller"
	defaultCaller = "service"
)

// Authenticate admits only callers presenting the shared service token.
type Authenticate struct {
	serviceToken   []byte
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(serviceToken string, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{
		serviceToken:   []byte(serviceToken),
		contextManager: contextManager,
		logger:         logger,
	}
}

// AuthFunc reads the bearer token from the authorization header, compares it
// with the service token and records the caller name in the context.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	token, err := auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return nil, err
	}

	if len(m.serviceToken) == 0 || subtle.ConstantTimeCompare([]byte(token), m.serviceToken) != 1 {
		m.logger.Warn("gRPC: rejected call with invalid service token")
		return nil, status.Error(codes.Unauthenticated, "invalid service token")
	}

	caller := defaultCaller
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(callerHeader); len(values) > 0 && values[0] != "" {
			caller = values[0]
		}
	}

	return m.contextManager.SetCallerToContext(ctx, caller), nil
}
