package handlers

import (
	"tabletally/internal/app"
	groupController "tabletally/internal/controllers/groups"
	"tabletally/internal/handlers/middleware"
	"tabletally/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GroupHandler struct {
	Handler
	groupController groupController.GroupControllerInterface
}

func NewGroupHandler(app app.App, router fiber.Router) *GroupHandler {
	return &GroupHandler{
		groupController: app.Controllers.Group,
		Handler: Handler{
			log:        logger.New("handlers").File("group_handler"),
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *GroupHandler) Register() {
	groups := h.router.Group("/groups", h.middleware.RequireAuth())

	groups.Post("/", h.Create)
	groups.Get("/:id", h.Get)
	groups.Post("/:id/members", h.AddMember)
}

type createGroupRequest struct {
	Name string `json:"name"`
}

func (h *GroupHandler) Create(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("group_handler").Function("Create")

	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	group, err := h.groupController.Create(c.UserContext(), user, req.Name)
	if err != nil {
		_ = log.Err("Failed to create group", err, "userID", user.ID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to create group",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *GroupHandler) Get(c *fiber.Ctx) error {
	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid group id",
		})
	}

	group, err := h.groupController.Get(c.UserContext(), groupID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Group not found",
		})
	}

	return c.JSON(group)
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"userId"`
}

func (h *GroupHandler) AddMember(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("group_handler").Function("AddMember")

	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	groupID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid group id",
		})
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.groupController.AddMember(c.UserContext(), user, groupID, req.UserID); err != nil {
		_ = log.Err("Failed to add group member", err, "groupID", groupID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to add member",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
