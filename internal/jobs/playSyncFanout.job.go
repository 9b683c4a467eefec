package jobs

import (
	"context"
	"fmt"
	"time"

	"tabletally/internal/logger"
	"tabletally/internal/repositories"
	"tabletally/internal/services"
)

// playSyncWindowDays bounds how far back the periodic import looks. Full
// history imports happen once through the manual sync endpoint; the
// periodic job only has to catch recent edits and deletions.
const playSyncWindowDays = 30

// PlaySyncFanoutJob imports recent BGG plays for every user with a linked
// BGG account. Users run as independent tasks on the worker pool, so one
// user's failure never blocks the rest.
type PlaySyncFanoutJob struct {
	playSyncService *services.PlaySyncService
	userRepo        repositories.UserRepository
	runner          *Runner
	log             logger.Logger
	schedule        services.Schedule
}

func NewPlaySyncFanoutJob(
	playSyncService *services.PlaySyncService,
	userRepo repositories.UserRepository,
	runner *Runner,
	schedule services.Schedule,
) *PlaySyncFanoutJob {
	return &PlaySyncFanoutJob{
		playSyncService: playSyncService,
		userRepo:        userRepo,
		runner:          runner,
		log:             logger.New("playSyncFanoutJob"),
		schedule:        schedule,
	}
}

func (j *PlaySyncFanoutJob) Name() string {
	return "PlaySyncFanout"
}

func (j *PlaySyncFanoutJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	users, err := j.userRepo.GetWithBGGUsernames(ctx)
	if err != nil {
		return log.Err("failed to list users for play sync", err)
	}

	if len(users) == 0 {
		return nil
	}

	maxDate := time.Now()
	minDate := maxDate.AddDate(0, 0, -playSyncWindowDays)

	tasks := make([]Task, 0, len(users))
	for i := range users {
		userID := users[i].ID
		tasks = append(tasks, Task{
			Name:        fmt.Sprintf("playSync:%s", userID),
			MaxAttempts: 3,
			Backoff:     30 * time.Second,
			Run: func(ctx context.Context) error {
				return j.playSyncService.SyncUserPlays(ctx, userID, minDate, maxDate)
			},
		})
	}

	log.Info("Fanning out play sync", "users", len(tasks))

	if err := j.runner.RunAll(ctx, tasks); err != nil {
		return log.Err("play sync fan-out finished with failures", err)
	}

	log.Info("Play sync fan-out completed")
	return nil
}

func (j *PlaySyncFanoutJob) Schedule() services.Schedule {
	return j.schedule
}
