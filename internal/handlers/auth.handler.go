package handlers

import (
	"errors"
	"server/internal/app"
	authController "server/internal/controllers/auth"
	"server/internal/handlers/middleware"
	"server/internal/logger"
	. "server/internal/models"
	"time"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Handler
	controller *authController.Controller
}

func NewAuthHandler(app app.App, router fiber.Router) *AuthHandler {
	log := logger.New("handlers").File("auth_handler")
	return &AuthHandler{
		controller: app.AuthController,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *AuthHandler) Register() {
	auth := h.router.Group("/auth")
	auth.Post("/register", h.register)
	auth.Post("/login", h.login)

	auth.Get("/me", h.middleware.RequireAuth(), h.me)
	auth.Post("/logout", h.middleware.RequireAuth(), h.logout)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	log := h.log.Function("register")

	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		log.Er("failed to parse register request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse register request"})
	}

	account, err := h.controller.Register(c.Context(), req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to register"})
	}

	return c.Status(fiber.StatusCreated).
		JSON(fiber.Map{"message": "success", "account": account})
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	log := h.log.Function("login")

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		log.Er("failed to parse login request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse login request"})
	}

	account, sessionID, err := h.controller.Login(c.Context(), req)
	if err != nil {
		if errors.Is(err, authController.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"message": "invalid credentials"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to login"})
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    sessionID,
		HTTPOnly: true,
		SameSite: "Lax",
		Expires:  time.Now().Add(time.Duration(h.controller.Config.SessionExpiryMinutes) * time.Minute),
	})

	return c.JSON(fiber.Map{"message": "success", "account": account})
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)
	return c.JSON(fiber.Map{"message": "success", "account": account})
}

func (h *AuthHandler) logout(c *fiber.Ctx) error {
	sessionID := c.Cookies(middleware.SessionCookie)
	if err := h.controller.Logout(c.Context(), sessionID); err != nil {
		h.log.Function("logout").Er("failed to drop session", err)
	}
	c.ClearCookie(middleware.SessionCookie)
	return c.JSON(fiber.Map{"message": "success"})
}
