package jobs

import (
	"context"

	"tabletally/internal/logger"
	"tabletally/internal/services"
)

// CatalogRefreshJob re-syncs board games whose metadata has gone stale
type CatalogRefreshJob struct {
	gameSyncService *services.GameSyncService
	log             logger.Logger
	schedule        services.Schedule
}

func NewCatalogRefreshJob(
	gameSyncService *services.GameSyncService,
	schedule services.Schedule,
) *CatalogRefreshJob {
	return &CatalogRefreshJob{
		gameSyncService: gameSyncService,
		log:             logger.New("catalogRefreshJob"),
		schedule:        schedule,
	}
}

func (j *CatalogRefreshJob) Name() string {
	return "CatalogStaleRefresh"
}

func (j *CatalogRefreshJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	log.Info("Starting stale catalog refresh")

	if err := j.gameSyncService.RefreshStale(ctx); err != nil {
		return log.Err("stale catalog refresh failed", err)
	}

	log.Info("Stale catalog refresh completed")
	return nil
}

func (j *CatalogRefreshJob) Schedule() services.Schedule {
	return j.schedule
}
