package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/grpc/reflection"

	"github.com/dtroode/identity-store/internal/api/admin"
	grpcctx "github.com/dtroode/identity-store/internal/api/grpc/context"
	"github.com/dtroode/identity-store/internal/api/grpc/router"
	grpcServer "github.com/dtroode/identity-store/internal/api/grpc/server"
	"github.com/dtroode/identity-store/internal/config"
	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/mail"
	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/repository/postgres"
	"github.com/dtroode/identity-store/internal/repository/sqlite"
	"github.com/dtroode/identity-store/internal/server"
	"github.com/dtroode/identity-store/internal/service"
	storage "github.com/dtroode/identity-store/internal/storage/minio"
	"github.com/dtroode/identity-store/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	userRepo, closeStore, err := openUserStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer closeStore()

	archive, err := newProfileArchive(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize profile archive", "error", err)
	}

	mailer, err := newMailer(cfg.Email, logger)
	if err != nil {
		logger.Fatal("failed to initialize mailer", "error", err)
	}

	tokenManager := token.NewJWT(cfg.Session.Secret, cfg.Session.TTL)

	resolver := service.NewResolver(userRepo, logger)
	mutator := service.NewMutator(userRepo, archive, cfg.SignIn.TokenTTL, logger)
	session := service.NewSession(userRepo, tokenManager, logger)
	signIn := service.NewSignIn(userRepo, mutator, mailer, service.SignInConfig{
		TokenTTL:    cfg.SignIn.TokenTTL,
		SendTimeout: cfg.Email.SendTimeout,
		LogLinks:    cfg.Development,
	}, logger)
	directory := service.NewDirectory(userRepo, logger)

	ctxMgr := grpcctx.NewManager()

	servers := []struct {
		server model.Server
		layer  model.SecurityLayer
	}{
		{
			server: registerGRPCServer(logger, router.Services{
				Resolver: resolver,
				Mutator:  mutator,
				Session:  session,
				SignIn:   signIn,
			}, cfg.GRPC.ServiceToken, ctxMgr, fmt.Sprintf(":%s", cfg.GRPC.Port)),
			layer: server.NewSecurityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName),
		},
	}
	if cfg.HTTP.Enabled {
		servers = append(servers, struct {
			server model.Server
			layer  model.SecurityLayer
		}{
			server: admin.NewServer(admin.Config{
				Addr:       fmt.Sprintf(":%s", cfg.HTTP.Port),
				RateLimit:  cfg.HTTP.RateLimit,
				RateWindow: cfg.HTTP.RateWindow,
			}, directory, session, logger),
			layer: server.NewSecurityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName),
		})
	}

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server, sl model.SecurityLayer) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s.server, s.layer)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.server.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.server.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func openUserStore(ctx context.Context, cfg config.Database) (model.UserStore, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewUserRepository(db), func() { _ = db.Close() }, nil
	default:
		conn, err := postgres.NewConnection(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUserRepository(conn.DB), func() { _ = conn.Close() }, nil
	}
}

// newProfileArchive returns nil, leaving archiving off, when no endpoint is configured.
func newProfileArchive(ctx context.Context, cfg config.Storage) (model.ProfileArchive, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return storage.NewClient(ctx, minioClient, cfg.Bucket)
}

func newMailer(cfg config.Email, logger *logger.Logger) (model.Mailer, error) {
	if cfg.Server == "" {
		logger.Warn("no smtp server configured, sign-in mail will only be logged")
		return mail.NewLogSender(logger), nil
	}

	return mail.NewSMTPSender(mail.SMTPConfig{
		Server:   cfg.Server,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		SSL:      cfg.SSL,
		From:     cfg.From,
	})
}

func registerGRPCServer(
	logger *logger.Logger,
	services router.Services,
	serviceToken string,
	ctxMgr model.ContextManager,
	addr string,
) *grpcServer.GRPCServer {
	r := router.New(services, serviceToken, ctxMgr, logger)
	s := r.Register()

	reflection.Register(s)

	return grpcServer.NewGRPCServer(s, addr)
}
