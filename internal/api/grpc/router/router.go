package router

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/identity-store/internal/api/grpc/handler"
	"github.com/dtroode/identity-store/internal/api/grpc/middleware"
	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Services groups the service layer the adapter exposes.
type Services struct {
	Resolver handler.ResolverService
	Mutator  handler.MutatorService
	Session  handler.SessionService
	SignIn   handler.SignInService
}

// Router represents a gRPC router for the identity adapter.
// It manages gRPC service registration and middleware configuration.
type Router struct {
	services       Services
	serviceToken   string
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates new gRPC Router instance.
func New(
	services Services,
	serviceToken string,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		services:       services,
		serviceToken:   serviceToken,
		contextManager: contextManager,
		logger:         logger,
	}
}

// authRequired exempts the health service; everything else needs the service token.
func authRequired(_ context.Context, c interceptors.CallMeta) bool {
	return c.Service != healthpb.Health_ServiceDesc.ServiceName
}

// Register builds the gRPC server with request logging, panic recovery and
// service-token authentication, and registers the adapter and health services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.contextManager, r.logger)
	authenticate := middleware.NewAuthenticate(r.serviceToken, r.contextManager, r.logger)
	recovering := middleware.NewRecovery(r.contextManager, r.logger)

	recoveryOpt := recovery.WithRecoveryHandlerContext(recovering.HandlePanic)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			recovery.UnaryServerInterceptor(recoveryOpt),
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoveryOpt),
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(authRequired),
			),
		),
	)
	r.registerIdentityRoutes(s)
	r.registerHealth(s)

	return s
}

func (r *Router) registerIdentityRoutes(server *grpc.Server) {
	identityHandler := handler.NewIdentity(
		r.services.Resolver,
		r.services.Mutator,
		r.services.Session,
		r.services.SignIn,
		r.contextManager,
		r.logger,
	)
	handler.RegisterIdentityAdapterServer(server, identityHandler)
}

func (r *Router) registerHealth(server *grpc.Server) {
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
}
