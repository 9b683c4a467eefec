package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"tabletally/internal/logger"
	"tabletally/internal/services"
)

// Task is one unit of background work with its own retry policy. Attempts
// beyond the first wait Backoff, doubled per attempt. Terminal errors stop
// retrying immediately.
type Task struct {
	Name        string
	MaxAttempts int
	Backoff     time.Duration
	Run         func(ctx context.Context) error
}

// Runner executes tasks on a bounded worker pool. Cancellation of the given
// context stops workers between attempts; in-flight attempts observe it
// through their own context.
type Runner struct {
	workers int
	log     logger.Logger
}

func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		workers: workers,
		log:     logger.New("jobRunner"),
	}
}

// RunAll executes every task and returns the combined failures. A failing
// task never prevents the others from running.
func (r *Runner) RunAll(ctx context.Context, tasks []Task) error {
	log := r.log.Function("RunAll")

	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task)
	errCh := make(chan error, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				if err := r.runTask(ctx, task); err != nil {
					errCh <- err
				}
			}
		}()
	}

	for _, task := range tasks {
		select {
		case taskCh <- task:
		case <-ctx.Done():
			log.Warn("Run cancelled before all tasks were dispatched")
			close(taskCh)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(taskCh)
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (r *Runner) runTask(ctx context.Context, task Task) error {
	log := r.log.Function("runTask")

	maxAttempts := task.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := task.Backoff << (attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		lastErr = task.Run(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) {
			return lastErr
		}
		if services.IsTerminalError(lastErr) {
			log.Warn("Task failed terminally, not retrying",
				"task", task.Name,
				"attempt", attempt+1,
				"error", lastErr,
			)
			return lastErr
		}

		log.Warn("Task attempt failed",
			"task", task.Name,
			"attempt", attempt+1,
			"maxAttempts", maxAttempts,
			"error", lastErr,
		)
	}

	return log.Err("task exhausted its attempts", lastErr, "task", task.Name)
}
