package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"tabletally/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRunAll_RunsEveryTask(t *testing.T) {
	runner := NewRunner(3)

	var ran atomic.Int32
	tasks := make([]Task, 10)
	for i := range tasks {
		tasks[i] = Task{
			Name: "count",
			Run: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		}
	}

	require.NoError(t, runner.RunAll(context.Background(), tasks))
	assert.Equal(t, int32(10), ran.Load())
}

func TestRunnerRunAll_FailingTaskDoesNotBlockOthers(t *testing.T) {
	runner := NewRunner(2)

	var ran atomic.Int32
	boom := errors.New("boom")
	tasks := []Task{
		{Name: "fails", Run: func(context.Context) error { return boom }},
		{Name: "succeeds", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}},
	}

	err := runner.RunAll(context.Background(), tasks)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), ran.Load())
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	runner := NewRunner(1)

	var attempts atomic.Int32
	task := Task{
		Name:        "flaky",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Run: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return services.ErrTransientNetwork
			}
			return nil
		},
	}

	require.NoError(t, runner.RunAll(context.Background(), []Task{task}))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRunnerStopsOnTerminalError(t *testing.T) {
	runner := NewRunner(1)

	var attempts atomic.Int32
	task := Task{
		Name:        "rejected",
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Run: func(context.Context) error {
			attempts.Add(1)
			return services.ErrAuthenticationFailed
		},
	}

	err := runner.RunAll(context.Background(), []Task{task})
	assert.ErrorIs(t, err, services.ErrAuthenticationFailed)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestRunnerExhaustsAttempts(t *testing.T) {
	runner := NewRunner(1)

	var attempts atomic.Int32
	task := Task{
		Name:        "hopeless",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
		Run: func(context.Context) error {
			attempts.Add(1)
			return services.ErrTransientNetwork
		},
	}

	err := runner.RunAll(context.Background(), []Task{task})
	assert.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRunnerCancellationStopsDispatch(t *testing.T) {
	runner := NewRunner(1)
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	tasks := []Task{
		{Name: "first", Run: func(context.Context) error {
			ran.Add(1)
			cancel()
			time.Sleep(10 * time.Millisecond)
			return nil
		}},
		{Name: "second", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}},
		{Name: "third", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}},
	}

	err := runner.RunAll(ctx, tasks)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, ran.Load(), int32(3))
}

func TestRunnerCancellationStopsRetryWait(t *testing.T) {
	runner := NewRunner(1)
	ctx, cancel := context.WithCancel(context.Background())

	var attempts atomic.Int32
	task := Task{
		Name:        "waiting",
		MaxAttempts: 3,
		Backoff:     time.Hour,
		Run: func(context.Context) error {
			attempts.Add(1)
			cancel()
			return services.ErrTransientNetwork
		},
	}

	done := make(chan error, 1)
	go func() { done <- runner.RunAll(ctx, []Task{task}) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not observe cancellation during backoff")
	}
	assert.Equal(t, int32(1), attempts.Load())
}
