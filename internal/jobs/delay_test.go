package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitZeroConfigReturnsImmediately(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, wait(context.Background(), DelayConfig{}))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitRespectsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := wait(ctx, DelayConfig{Min: time.Minute, Max: time.Minute})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitStaysWithinBounds(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, wait(context.Background(), DelayConfig{Min: 10 * time.Millisecond, Max: 30 * time.Millisecond}))
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	require.Less(t, elapsed, 500*time.Millisecond)
}
