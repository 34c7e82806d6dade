package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterReplacesExistingName(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())

	var firstRuns, secondRuns atomic.Int32
	require.NoError(t, s.Register("catalogue_index:drakkar", "@every 1h",
		func(context.Context) error { firstRuns.Add(1); return nil }))
	require.NoError(t, s.Register("catalogue_index:drakkar", "@every 2h",
		func(context.Context) error { secondRuns.Add(1); return nil }))

	// The first registration's cron entry is gone; only the replacement
	// runs.
	require.Len(t, s.cron.Entries(), 1)
	s.cron.Entry(s.entries["catalogue_index:drakkar"]).WrappedJob.Run()
	require.Equal(t, int32(0), firstRuns.Load())
	require.Equal(t, int32(1), secondRuns.Load())
}

func TestRegisterBadSpecKeepsExistingEntry(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register("publisher", "@every 10m", noop))
	require.Error(t, s.Register("publisher", "not a cron spec", noop))
	require.Len(t, s.cron.Entries(), 1)
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())
	require.Error(t, s.Register("bad", "not a cron spec", func(context.Context) error { return nil }))
}

func TestSingleFlightSkipsOverlappingRuns(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())

	var started atomic.Int32
	block := make(chan struct{})
	firstRunning := make(chan struct{})
	err := s.Register("slow", "@every 1h", func(context.Context) error {
		started.Add(1)
		close(firstRunning)
		<-block
		return nil
	})
	require.NoError(t, err)

	// Drive the wrapped entry directly; cron rounds sub-second @every
	// specs up to a second, so tick-based timing is not testable here.
	job := s.cron.Entry(s.entries["slow"]).WrappedJob

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		job.Run()
	}()
	<-firstRunning

	// Invocations overlapping the blocked first run are skipped, not
	// queued behind it.
	job.Run()
	job.Run()
	require.Equal(t, int32(1), started.Load())

	close(block)
	wg.Wait()
	require.Equal(t, int32(1), started.Load())
}

func TestStopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := New(zap.NewNop())

	running := make(chan struct{})
	canceled := make(chan struct{})
	err := s.Register("watch", "@every 1h", func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})
	require.NoError(t, err)

	go s.cron.Entry(s.entries["watch"]).WrappedJob.Run()
	<-running

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("job context was not canceled on Stop")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after jobs finished")
	}
}
