package handlers

import (
	"errors"
	"server/internal/app"
	connectionController "server/internal/controllers/connection"
	"server/internal/logger"
	. "server/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ConnectionHandler struct {
	Handler
	controller *connectionController.Controller
}

func NewConnectionHandler(app app.App, router fiber.Router) *ConnectionHandler {
	log := logger.New("handlers").File("connection_handler")
	return &ConnectionHandler{
		controller: app.ConnectionController,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *ConnectionHandler) Register() {
	connections := h.router.Group("/connections", h.middleware.RequireAuth())

	connections.Get("/active", h.middleware.RequireRole(RoleClient), h.getActive)
	connections.Get("/history", h.middleware.RequireRole(RoleClient), h.history)
	connections.Post("/disconnect", h.middleware.RequireRole(RoleClient), h.disconnect)

	connections.Get("/roster", h.middleware.RequireRole(RolePractitioner), h.roster)
}

func (h *ConnectionHandler) getActive(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	connection, stale, err := h.controller.GetActive(c.Context(), account.ID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).
				JSON(fiber.Map{"message": "record store unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to get connection"})
	}

	return c.JSON(fiber.Map{"message": "success", "connection": connection, "stale": stale})
}

func (h *ConnectionHandler) history(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	connections, err := h.controller.History(c.Context(), account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to get history"})
	}

	return c.JSON(fiber.Map{"message": "success", "connections": connections})
}

func (h *ConnectionHandler) disconnect(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	connection, err := h.controller.Disconnect(c.Context(), account.ID, ReasonClientDisconnected)
	if err != nil {
		if errors.Is(err, ErrUnconfirmed) {
			return c.Status(fiber.StatusAccepted).
				JSON(fiber.Map{"message": "unconfirmed", "detail": "disconnect queued, record store unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to disconnect"})
	}

	return c.JSON(fiber.Map{"message": "success", "connection": connection})
}

func (h *ConnectionHandler) roster(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	clients, stale, err := h.controller.ListConnectedClients(c.Context(), account.ID)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).
				JSON(fiber.Map{"message": "record store unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to get roster"})
	}

	return c.JSON(fiber.Map{"message": "success", "clients": clients, "stale": stale})
}
