package handlers

import (
	"tabletally/internal/app"
	userController "tabletally/internal/controllers/users"
	"tabletally/internal/handlers/middleware"
	"tabletally/internal/logger"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	Handler
	userController userController.UserControllerInterface
}

func NewUserHandler(app app.App, router fiber.Router) *UserHandler {
	return &UserHandler{
		userController: app.Controllers.User,
		Handler: Handler{
			log:        logger.New("handlers").File("user_handler"),
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *UserHandler) Register() {
	users := h.router.Group("/users", h.middleware.RequireAuth())

	users.Get("/me", h.GetProfile)
	users.Put("/me/bgg-username", h.SetBGGUsername)
}

func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	return c.JSON(h.userController.GetProfile(c.UserContext(), user))
}

type setBGGUsernameRequest struct {
	Username string `json:"username"`
}

func (h *UserHandler) SetBGGUsername(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("user_handler").Function("SetBGGUsername")

	user := middleware.GetUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req setBGGUsernameRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updated, err := h.userController.SetBGGUsername(c.UserContext(), user, req.Username)
	if err != nil {
		_ = log.Err("Failed to set BGG username", err, "userID", user.ID)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to update BGG username",
		})
	}

	return c.JSON(updated.ToProfile())
}
