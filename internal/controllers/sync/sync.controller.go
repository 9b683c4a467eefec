package syncController

import (
	"context"
	"time"

	"tabletally/config"
	"tabletally/internal/events"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
	"tabletally/internal/services"
)

// fullHistoryYears bounds a full import. BGG predates the site itself going
// back further than this.
const fullHistoryYears = 25

type SyncController struct {
	userRepo        repositories.UserRepository
	syncRunRepo     repositories.SyncRunRepository
	playSyncService *services.PlaySyncService
	gameSyncService *services.GameSyncService
	eventBus        *events.EventBus
	config          config.Config
}

type SyncControllerInterface interface {
	HandlePlaySyncRequest(ctx context.Context, user *User, minDate, maxDate *time.Time) error
	HandleCatalogSyncRequest(ctx context.Context, bggIDs []int64) error
	GetSyncHistory(ctx context.Context, user *User, limit int) ([]SyncRun, error)
}

func New(
	repos repositories.Repository,
	services services.Service,
	eventBus *events.EventBus,
	config config.Config,
) SyncControllerInterface {
	return &SyncController{
		userRepo:        repos.User,
		syncRunRepo:     repos.SyncRun,
		playSyncService: services.PlaySync,
		gameSyncService: services.GameSync,
		eventBus:        eventBus,
		config:          config,
	}
}

// HandlePlaySyncRequest kicks off an inbound play import for the user. The
// date window is optional; omitting it imports the full history. The import
// runs in the background, progress flows through the event bus.
func (sc *SyncController) HandlePlaySyncRequest(
	ctx context.Context,
	user *User,
	minDate, maxDate *time.Time,
) error {
	log := logger.NewWithContext(ctx, "syncController").Function("HandlePlaySyncRequest")

	if !user.HasBGGUsername() {
		return log.ErrMsg("user does not have a BGG username configured")
	}

	max := time.Now()
	if maxDate != nil {
		max = *maxDate
	}
	min := max.AddDate(-fullHistoryYears, 0, 0)
	if minDate != nil {
		min = *minDate
	}

	userID := user.ID
	go func() {
		bg := context.Background()
		if err := sc.playSyncService.SyncUserPlays(bg, userID, min, max); err != nil {
			_ = log.Err("background play sync failed", err, "userID", userID)
		}
	}()

	log.Info("Play sync initiated", "userID", userID)
	return nil
}

// HandleCatalogSyncRequest syncs specific games on demand
func (sc *SyncController) HandleCatalogSyncRequest(ctx context.Context, bggIDs []int64) error {
	log := logger.NewWithContext(ctx, "syncController").Function("HandleCatalogSyncRequest")

	if len(bggIDs) == 0 {
		return log.ErrMsg("no BGG ids provided")
	}

	if err := sc.gameSyncService.SyncByBGGIDs(ctx, bggIDs); err != nil {
		return log.Err("catalog sync failed", err, "count", len(bggIDs))
	}

	return nil
}

// GetSyncHistory returns the user's most recent play imports
func (sc *SyncController) GetSyncHistory(ctx context.Context, user *User, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	userID := user.ID
	return sc.syncRunRepo.GetRecent(ctx, SyncRunKindPlays, &userID, limit)
}
