package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
)

// Config tunes the admin HTTP server.
type Config struct {
	Addr       string
	RateLimit  int
	RateWindow time.Duration
}

// Server is the admin HTTP endpoint.
type Server struct {
	app  *fiber.App
	addr string
}

var _ model.Server = (*Server)(nil)

// NewServer builds the fiber app with the admin routes.
func NewServer(cfg Config, directory DirectoryService, authenticator Authenticator, logger *logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal server error"

			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
				message = fiberErr.Message
			}

			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	h := NewHandler(directory, logger)
	group := app.Group("/admin",
		RateLimit(cfg.RateLimit, cfg.RateWindow),
		RequireAdmin(authenticator, logger),
	)
	group.Get("/users", h.ListUsers)

	return &Server{app: app, addr: cfg.Addr}
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves on the configured address through the security layer.
func (s *Server) Start(securityLayer model.SecurityLayer) error {
	listener, err := securityLayer.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.app.Listener(listener)
}

// Stop waits for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.addr
}
