package jobs

import (
	"tabletally/config"
	"tabletally/internal/logger"
	"tabletally/internal/repositories"
	"tabletally/internal/services"
)

const (
	Daily               = services.Daily
	Hourly              = services.Hourly
	EveryFifteenMinutes = services.EveryFifteenMinutes
)

func RegisterAllJobs(
	schedulerService *services.SchedulerService,
	config config.Config,
	services services.Service,
	repos repositories.Repository,
) error {
	log := logger.New("jobs").Function("RegisterAllJobs")
	log.Info("Registering jobs")

	runner := NewRunner(config.SyncWorkerCount)

	catalogRefreshJob := NewCatalogRefreshJob(services.GameSync, Daily)
	if err := schedulerService.AddJob(catalogRefreshJob); err != nil {
		return log.Err("failed to register catalog refresh job", err)
	}

	playSyncFanoutJob := NewPlaySyncFanoutJob(services.PlaySync, repos.User, runner, Hourly)
	if err := schedulerService.AddJob(playSyncFanoutJob); err != nil {
		return log.Err("failed to register play sync fan-out job", err)
	}

	playSubmitFlushJob := NewPlaySubmitFlushJob(
		services.PlaySubmit,
		repos.Play,
		runner,
		EveryFifteenMinutes,
	)
	if err := schedulerService.AddJob(playSubmitFlushJob); err != nil {
		return log.Err("failed to register play submit flush job", err)
	}

	return nil
}
