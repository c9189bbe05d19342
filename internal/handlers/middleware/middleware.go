package middleware

import (
	"server/config"
	"server/internal/controllers/auth"
	"server/internal/database"
	"server/internal/events"
	"server/internal/logger"
	. "server/internal/models"

	"github.com/gofiber/fiber/v2"
)

const SessionCookie = "session_id"

type Middleware struct {
	db       database.DB
	eventBus *events.EventBus
	config   config.Config
	auth     *authController.Controller
	log      logger.Logger
}

func New(
	db database.DB,
	eventBus *events.EventBus,
	config config.Config,
	auth *authController.Controller,
) Middleware {
	return Middleware{
		db:       db,
		eventBus: eventBus,
		config:   config,
		auth:     auth,
		log:      logger.New("middleware"),
	}
}

// RequireAuth resolves the session cookie (or X-Session-ID header) and puts
// the account into locals. No valid session means 401.
func (m Middleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(SessionCookie)
		if sessionID == "" {
			sessionID = c.Get("X-Session-ID")
		}

		account, err := m.auth.GetSession(c.Context(), sessionID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "unauthorized"})
		}

		c.Locals("account", *account)
		c.Locals("accountID", account.ID)
		return c.Next()
	}
}

// RequireRole gates a route to the given roles. Must run after RequireAuth.
func (m Middleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, ok := c.Locals("account").(Account)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "unauthorized"})
		}

		for _, role := range roles {
			if account.Role == role {
				return c.Next()
			}
		}

		m.log.Function("RequireRole").
			Warn("role denied", "accountID", account.ID, "role", account.Role)
		return c.Status(fiber.StatusForbidden).
			JSON(fiber.Map{"message": "forbidden"})
	}
}
