package handlers

import (
	"errors"
	"server/internal/app"
	intakeController "server/internal/controllers/intake"
	"server/internal/logger"
	. "server/internal/models"

	"github.com/gofiber/fiber/v2"
)

type IntakeHandler struct {
	Handler
	controller *intakeController.Controller
}

func NewIntakeHandler(app app.App, router fiber.Router) *IntakeHandler {
	log := logger.New("handlers").File("intake_handler")
	return &IntakeHandler{
		controller: app.IntakeController,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *IntakeHandler) Register() {
	intake := h.router.Group("/intake", h.middleware.RequireAuth())

	// Client side
	intake.Get("/practitioners/:code", h.middleware.RequireRole(RoleClient), h.lookupCode)
	intake.Post("/requests", h.middleware.RequireRole(RoleClient), h.submitCodeRequest)
	intake.Post("/questionnaire", h.middleware.RequireRole(RoleClient), h.submitQuestionnaire)
	intake.Post("/invites/verify", h.middleware.RequireRole(RoleClient), h.verifyInvite)

	// Practitioner side
	intake.Get("/requests", h.middleware.RequireRole(RolePractitioner), h.listRequests)
	intake.Post("/requests/:id/accept", h.middleware.RequireRole(RolePractitioner), h.acceptRequest)
	intake.Post("/requests/:id/decline", h.middleware.RequireRole(RolePractitioner), h.declineRequest)
	intake.Get("/invites", h.middleware.RequireRole(RolePractitioner), h.listInvites)
	intake.Post("/invites", h.middleware.RequireRole(RolePractitioner), h.createInvite)
}

func (h *IntakeHandler) lookupCode(c *fiber.Ctx) error {
	practitioner, stale, err := h.controller.LookupPractitionerCode(c.Context(), c.Params("code"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "practitioner not found"})
		}
		if errors.Is(err, ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).
				JSON(fiber.Map{"message": "record store unavailable"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to look up code"})
	}

	return c.JSON(fiber.Map{"message": "success", "practitioner": practitioner, "stale": stale})
}

func (h *IntakeHandler) submitCodeRequest(c *fiber.Ctx) error {
	log := h.log.Function("submitCodeRequest")
	account := c.Locals("account").(Account)

	var body CodeRequestBody
	if err := c.BodyParser(&body); err != nil {
		log.Er("failed to parse code request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse request"})
	}

	request, err := h.controller.SubmitCodeRequest(c.Context(), account.ID, body.Code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "practitioner not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to submit request"})
	}

	return c.Status(fiber.StatusCreated).
		JSON(fiber.Map{"message": "success", "request": request})
}

func (h *IntakeHandler) submitQuestionnaire(c *fiber.Ctx) error {
	log := h.log.Function("submitQuestionnaire")
	account := c.Locals("account").(Account)

	var body QuestionnaireRequest
	if err := c.BodyParser(&body); err != nil {
		log.Er("failed to parse questionnaire", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse questionnaire"})
	}

	request, err := h.controller.SubmitQuestionnaire(c.Context(), account.ID, body.NeededSpecializations)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to submit questionnaire"})
	}

	return c.Status(fiber.StatusCreated).
		JSON(fiber.Map{"message": "success", "request": request})
}

func (h *IntakeHandler) verifyInvite(c *fiber.Ctx) error {
	log := h.log.Function("verifyInvite")
	account := c.Locals("account").(Account)

	var body VerifyInviteRequest
	if err := c.BodyParser(&body); err != nil {
		log.Er("failed to parse invite verification", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse request"})
	}

	connection, err := h.controller.VerifyInvite(c.Context(), account.ID, body.ClientContact, body.Code)
	if err != nil {
		if errors.Is(err, ErrAlreadyConnected) {
			return c.Status(fiber.StatusConflict).
				JSON(fiber.Map{"message": "already connected"})
		}
		// Everything else fails closed with the same answer.
		return c.Status(fiber.StatusUnauthorized).
			JSON(fiber.Map{"message": "invalid invite"})
	}

	return c.JSON(fiber.Map{"message": "success", "connection": connection})
}

func (h *IntakeHandler) listRequests(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	requests, err := h.controller.ListPendingRequests(c.Context(), account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to list requests"})
	}

	return c.JSON(fiber.Map{"message": "success", "requests": requests})
}

func (h *IntakeHandler) acceptRequest(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	connection, err := h.controller.AcceptRequest(c.Context(), account.ID, c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "request not found"})
		}
		if errors.Is(err, ErrAlreadyConnected) {
			return c.Status(fiber.StatusConflict).
				JSON(fiber.Map{"message": "client already connected"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to accept request"})
	}

	return c.JSON(fiber.Map{"message": "success", "connection": connection})
}

func (h *IntakeHandler) declineRequest(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	next, err := h.controller.DeclineRequest(c.Context(), account.ID, c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).
				JSON(fiber.Map{"message": "request not found"})
		}
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to decline request"})
	}

	return c.JSON(fiber.Map{"message": "success", "nextRequest": next})
}

func (h *IntakeHandler) listInvites(c *fiber.Ctx) error {
	account := c.Locals("account").(Account)

	invites, err := h.controller.ListInvites(c.Context(), account.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to list invites"})
	}

	return c.JSON(fiber.Map{"message": "success", "invites": invites})
}

func (h *IntakeHandler) createInvite(c *fiber.Ctx) error {
	log := h.log.Function("createInvite")
	account := c.Locals("account").(Account)

	var body CreateInviteRequest
	if err := c.BodyParser(&body); err != nil {
		log.Er("failed to parse invite request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "failed to parse request"})
	}
	if body.ClientContact == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"message": "clientContact is required"})
	}

	code, invite, err := h.controller.CreateInvite(c.Context(), account.ID, body.ClientContact)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).
			JSON(fiber.Map{"message": "failed to create invite"})
	}

	// The plaintext code appears in this response and nowhere else.
	return c.Status(fiber.StatusCreated).
		JSON(fiber.Map{"message": "success", "invite": invite, "code": code})
}
