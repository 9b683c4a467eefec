package handlers

import (
	"tabletally/internal/app"
	playController "tabletally/internal/controllers/play"
	"tabletally/internal/handlers/middleware"
	"tabletally/internal/logger"
	"tabletally/internal/models"
	"tabletally/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PlayHandler struct {
	Handler
	playController playController.PlayControllerInterface
}

func NewPlayHandler(app app.App, router fiber.Router) *PlayHandler {
	return &PlayHandler{
		playController: app.Controllers.Play,
		Handler: Handler{
			log:        logger.New("handlers").File("play_handler"),
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *PlayHandler) Register() {
	plays := h.router.Group("/plays", h.middleware.RequireAuth())

	plays.Post("/", h.Create)
	plays.Get("/", h.List)
	plays.Get("/stats", h.Stats)
	plays.Get("/:id", h.Get)
	plays.Put("/:id", h.Update)
	plays.Delete("/:id", h.Delete)
	plays.Post("/:id/submit", h.Submit)
	plays.Put("/credentials", h.StoreCredential)
}

func (h *PlayHandler) Create(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("play_handler").Function("Create")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req services.CreatePlayRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	play, err := h.playController.Create(c.UserContext(), user, req)
	if err != nil {
		_ = log.Err("Failed to create play", err, "userID", user.ID)
		return badRequest(c, "Failed to create play")
	}

	return c.Status(fiber.StatusCreated).JSON(play)
}

func (h *PlayHandler) List(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var groupID *uuid.UUID
	if raw := c.Query("groupId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid group id")
		}
		groupID = &id
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)
	includeExcluded := c.QueryBool("includeExcluded", false)

	plays, err := h.playController.List(c.UserContext(), user, groupID, includeExcluded, limit, offset)
	if err != nil {
		return serverError(c, "Failed to list plays")
	}

	return c.JSON(fiber.Map{"plays": plays})
}

func (h *PlayHandler) Stats(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var groupID *uuid.UUID
	if raw := c.Query("groupId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "Invalid group id")
		}
		groupID = &id
	}

	stats, err := h.playController.Stats(c.UserContext(), user, groupID)
	if err != nil {
		return serverError(c, "Failed to compute stats")
	}

	return c.JSON(stats)
}

func (h *PlayHandler) Get(c *fiber.Ctx) error {
	playID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid play id")
	}

	play, err := h.playController.Get(c.UserContext(), playID)
	if err != nil || play == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Play not found",
		})
	}

	return c.JSON(play)
}

func (h *PlayHandler) Update(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("play_handler").Function("Update")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	playID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid play id")
	}

	var req services.UpdatePlayRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	play, err := h.playController.Update(c.UserContext(), user, playID, req)
	if err != nil {
		_ = log.Err("Failed to update play", err, "playID", playID)
		return badRequest(c, "Failed to update play")
	}

	return c.JSON(play)
}

func (h *PlayHandler) Delete(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("play_handler").Function("Delete")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	playID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid play id")
	}

	if err := h.playController.Delete(c.UserContext(), user, playID); err != nil {
		_ = log.Err("Failed to delete play", err, "playID", playID)
		return badRequest(c, "Failed to delete play")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type submitPlayRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (h *PlayHandler) Submit(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("play_handler").Function("Submit")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	playID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid play id")
	}

	var req submitPlayRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return badRequest(c, "Invalid request body")
	}

	var credential *models.Credential
	if req.Username != "" && req.Password != "" {
		credential = &models.Credential{Username: req.Username, Password: req.Password}
	}

	if err := h.playController.Submit(c.UserContext(), user, playID, credential); err != nil {
		_ = log.Err("Failed to submit play", err, "playID", playID)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to submit play",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Play submitted",
	})
}

type storeCredentialRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *PlayHandler) StoreCredential(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("play_handler").Function("StoreCredential")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req storeCredentialRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "Username and password are required")
	}

	if err := h.playController.StoreCredential(c.UserContext(), user, req.Username, req.Password); err != nil {
		_ = log.Err("Failed to store credential", err, "userID", user.ID)
		return serverError(c, "Failed to store credential")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Authentication required",
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

func serverError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": message,
	})
}
