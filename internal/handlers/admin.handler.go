package handlers

import (
	"errors"
	"server/internal/app"
	adminController "server/internal/controllers/admin"
	"server/internal/logger"
	. "server/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	Handler
	controller *adminController.Controller
}

func NewAdminHandler(app app.App, router fiber.Router) *AdminHandler {
	log := logger.New("handlers").File("admin_handler")
	return &AdminHandler{
		controller: app.AdminController,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *AdminHandler) Register() {
	admin := h.router.Group("/admin", h.middleware.RequireAuth(), h.middleware.RequireRole(RoleAdmin))

	admin.Post("/practitioners/:id/approve", h.approve)
	admin.Post("/practitioners/:id/suspend", h.suspend)
	admin.Delete("/practitioners/:id", h.delete)
	admin.Post("/practitioners/:id/fraud", h.tagFraud)
	admin.Post("/practitioners/:id/fraud/clear", h.clearFraud)
	admin.Get("/fraud/expired", h.listFraudExpired)
	admin.Post("/fraud/sweep", h.sweepFraudExpired)
	admin.Get("/accounts/:id/applications", h.listApplications)
	admin.Post("/broadcast", h.broadcast)
}

type adminActionBody struct {
	Notes *string `json:"notes,omitempty"`
}

func (h *AdminHandler) approve(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	practitioner, err := h.controller.Approve(c.Context(), admin.ID, c.Params("id"))
	if err != nil {
		return h.practitionerError(c, err, "failed to approve practitioner")
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner})
}

func (h *AdminHandler) suspend(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	var body adminActionBody
	_ = c.BodyParser(&body)

	practitioner, err := h.controller.Suspend(c.Context(), admin.ID, c.Params("id"), body.Notes)
	if err != nil {
		return h.practitionerError(c, err, "failed to suspend practitioner")
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner})
}

func (h *AdminHandler) delete(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	practitioner, report, err := h.controller.Delete(c.Context(), admin.ID, c.Params("id"))
	if err != nil {
		return h.practitionerError(c, err, "failed to delete practitioner")
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner, "reassignment": report})
}

func (h *AdminHandler) tagFraud(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	var body adminActionBody
	_ = c.BodyParser(&body)

	practitioner, err := h.controller.TagFraud(c.Context(), admin.ID, c.Params("id"), body.Notes)
	if err != nil {
		return h.practitionerError(c, err, "failed to tag practitioner")
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner})
}

func (h *AdminHandler) clearFraud(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	practitioner, err := h.controller.ClearFraud(c.Context(), admin.ID, c.Params("id"))
	if err != nil {
		return h.practitionerError(c, err, "failed to clear fraud tag")
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner})
}

func (h *AdminHandler) listFraudExpired(c *fiber.Ctx) error {
	practitioners, err := h.controller.ListFraudExpired(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to list expired appeals"})
	}

	return c.JSON(fiber.Map{"message": "success", "practitioners": practitioners})
}

type sweepBody struct {
	PractitionerIDs []string `json:"practitionerIds"`
}

func (h *AdminHandler) sweepFraudExpired(c *fiber.Ctx) error {
	log := h.log.Function("sweepFraudExpired")
	admin := c.Locals("account").(Account)

	var body sweepBody
	if err := c.BodyParser(&body); err != nil {
		log.Er("failed to parse sweep request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse request"})
	}

	reports, err := h.controller.SweepFraudExpired(c.Context(), admin.ID, body.PractitionerIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "sweep failed", "reports": reports})
	}

	return c.JSON(fiber.Map{"message": "success", "reports": reports})
}

func (h *AdminHandler) listApplications(c *fiber.Ctx) error {
	applications, err := h.controller.ListApplications(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to list applications"})
	}

	return c.JSON(fiber.Map{"message": "success", "applications": applications})
}

type broadcastBody struct {
	Message string `json:"message"`
}

func (h *AdminHandler) broadcast(c *fiber.Ctx) error {
	admin := c.Locals("account").(Account)

	var body broadcastBody
	if err := c.BodyParser(&body); err != nil || body.Message == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "message is required"})
	}

	h.controller.SendBroadcast(c.Context(), admin, body.Message)
	return c.JSON(fiber.Map{"message": "success"})
}

func (h *AdminHandler) practitionerError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).
			JSON(fiber.Map{"message": "practitioner not found"})
	}
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"message": msg})
}
