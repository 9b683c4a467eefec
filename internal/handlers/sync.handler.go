package handlers

import (
	"time"

	"tabletally/internal/app"
	syncController "tabletally/internal/controllers/sync"
	"tabletally/internal/handlers/middleware"
	"tabletally/internal/logger"
	"tabletally/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type SyncHandler struct {
	Handler
	syncController syncController.SyncControllerInterface
}

func NewSyncHandler(app app.App, router fiber.Router) *SyncHandler {
	return &SyncHandler{
		syncController: app.Controllers.Sync,
		Handler: Handler{
			log:        logger.New("handlers").File("sync_handler"),
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *SyncHandler) Register() {
	sync := h.router.Group("/sync", h.middleware.RequireAuth())

	sync.Post("/plays", h.InitiatePlaySync)
	sync.Post("/catalog", h.InitiateCatalogSync)
	sync.Get("/history", h.GetSyncHistory)
}

type playSyncRequest struct {
	MinDate string `json:"minDate,omitempty"`
	MaxDate string `json:"maxDate,omitempty"`
}

func (h *SyncHandler) InitiatePlaySync(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("sync_handler").Function("InitiatePlaySync")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req playSyncRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return badRequest(c, "Invalid request body")
	}

	var minDate, maxDate *time.Time
	if req.MinDate != "" {
		parsed, err := utils.ParsePlayDate(req.MinDate)
		if err != nil {
			return badRequest(c, "Invalid minDate")
		}
		minDate = &parsed
	}
	if req.MaxDate != "" {
		parsed, err := utils.ParsePlayDate(req.MaxDate)
		if err != nil {
			return badRequest(c, "Invalid maxDate")
		}
		maxDate = &parsed
	}

	if err := h.syncController.HandlePlaySyncRequest(c.UserContext(), user, minDate, maxDate); err != nil {
		_ = log.Err("Failed to initiate play sync", err, "userID", user.ID)
		return badRequest(c, "Failed to initiate play sync")
	}

	log.Info("Play sync initiated", "userID", user.ID)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "success",
		"message": "Play sync initiated",
	})
}

type catalogSyncRequest struct {
	BGGIDs []int64 `json:"bggIds"`
}

func (h *SyncHandler) InitiateCatalogSync(c *fiber.Ctx) error {
	log := logger.New("handlers").TraceFromContext(c.UserContext()).File("sync_handler").Function("InitiateCatalogSync")

	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	var req catalogSyncRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.syncController.HandleCatalogSyncRequest(c.UserContext(), req.BGGIDs); err != nil {
		_ = log.Err("Failed to sync catalog", err, "count", len(req.BGGIDs))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to sync catalog",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "Catalog sync completed",
	})
}

func (h *SyncHandler) GetSyncHistory(c *fiber.Ctx) error {
	user := middleware.GetUser(c)
	if user == nil {
		return unauthorized(c)
	}

	runs, err := h.syncController.GetSyncHistory(c.UserContext(), user, c.QueryInt("limit", 20))
	if err != nil {
		return serverError(c, "Failed to load sync history")
	}

	return c.JSON(fiber.Map{"runs": runs})
}
