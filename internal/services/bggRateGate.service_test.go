package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBGGRateGate_SpacesCalls(t *testing.T) {
	gate := NewBGGRateGate(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gate.Wait(ctx))
	require.NoError(t, gate.Wait(ctx))
	require.NoError(t, gate.Wait(ctx))
	elapsed := time.Since(start)

	// Three calls need two full intervals between them
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestBGGRateGate_FirstCallIsImmediate(t *testing.T) {
	gate := NewBGGRateGate(time.Second)

	start := time.Now()
	require.NoError(t, gate.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestBGGRateGate_CancelledContextReturns(t *testing.T) {
	gate := NewBGGRateGate(time.Minute)
	require.NoError(t, gate.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gate.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBGGRateGate_ConcurrentCallersQueue(t *testing.T) {
	gate := NewBGGRateGate(20 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, gate.Wait(ctx))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
