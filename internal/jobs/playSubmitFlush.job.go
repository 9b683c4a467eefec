package jobs

import (
	"context"
	"fmt"
	"time"

	"tabletally/internal/logger"
	"tabletally/internal/repositories"
	"tabletally/internal/services"
)

// playSubmitBatchSize caps how many pending submissions a single flush
// picks up. The rate gate spaces them out anyway; the cap just keeps one
// flush from running past the next.
const playSubmitBatchSize = 50

// PlaySubmitFlushJob pushes plays flagged for outbound sync up to BGG
type PlaySubmitFlushJob struct {
	playSubmitService *services.PlaySubmitService
	playRepo          repositories.PlayRepository
	runner            *Runner
	log               logger.Logger
	schedule          services.Schedule
}

func NewPlaySubmitFlushJob(
	playSubmitService *services.PlaySubmitService,
	playRepo repositories.PlayRepository,
	runner *Runner,
	schedule services.Schedule,
) *PlaySubmitFlushJob {
	return &PlaySubmitFlushJob{
		playSubmitService: playSubmitService,
		playRepo:          playRepo,
		runner:            runner,
		log:               logger.New("playSubmitFlushJob"),
		schedule:          schedule,
	}
}

func (j *PlaySubmitFlushJob) Name() string {
	return "PlaySubmitFlush"
}

func (j *PlaySubmitFlushJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	pending, err := j.playRepo.GetPendingOutbound(ctx, playSubmitBatchSize)
	if err != nil {
		return log.Err("failed to list pending outbound plays", err)
	}

	if len(pending) == 0 {
		return nil
	}

	tasks := make([]Task, 0, len(pending))
	for i := range pending {
		playID := pending[i].ID
		tasks = append(tasks, Task{
			Name:        fmt.Sprintf("playSubmit:%s", playID),
			MaxAttempts: 3,
			Backoff:     time.Minute,
			Run: func(ctx context.Context) error {
				return j.playSubmitService.Submit(ctx, playID, nil, false)
			},
		})
	}

	log.Info("Flushing pending play submissions", "count", len(tasks))

	if err := j.runner.RunAll(ctx, tasks); err != nil {
		return log.Err("play submission flush finished with failures", err)
	}

	log.Info("Play submission flush completed")
	return nil
}

func (j *PlaySubmitFlushJob) Schedule() services.Schedule {
	return j.schedule
}
