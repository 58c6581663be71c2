package admin

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/dtroode/identity-store/internal/logger"
	"github.com/dtroode/identity-store/internal/model"
	"github.com/dtroode/identity-store/internal/service"
)

const localsUser = "user"

// Authenticator resolves a session token to its public user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.PublicUser, error)
}

// RequireAdmin lets a request through only when its bearer session token
// belongs to a user with admin set. Every other caller gets a bare 403.
func RequireAdmin(authenticator Authenticator, logger *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		if len(token) < len("Bearer ") || !strings.EqualFold(token[:len("Bearer ")], "Bearer ") {
			return c.SendStatus(fiber.StatusForbidden)
		}
		token = strings.TrimSpace(token[len("Bearer "):])

		user, err := authenticator.Authenticate(c.UserContext(), token)
		if err != nil {
			if !errors.Is(err, service.ErrInvalidSession) {
				logger.Error("Admin middleware: failed to authenticate session",
					"error", err.Error())
				return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
			}
			return c.SendStatus(fiber.StatusForbidden)
		}
		if !user.Admin {
			return c.SendStatus(fiber.StatusForbidden)
		}

		c.Locals(localsUser, user)
		return c.Next()
	}
}

// RateLimit allows limit requests per window for each client IP.
func RateLimit(limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests"})
		},
	})
}
