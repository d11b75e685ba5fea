package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poigraph/internal/store"
)

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	src.entered = make(chan struct{})
	src.release = make(chan struct{})
	gs := store.NewMemoryGraph()
	s := NewScheduler(newTestPipeline(src, gs, nil, museum()), time.Hour)

	ctx := context.Background()
	require.True(t, s.tick(ctx))
	<-src.entered
	assert.False(t, s.tick(ctx))

	close(src.release)
	require.Eventually(t, func() bool { return !s.running.Load() }, 2*time.Second, 10*time.Millisecond)

	_, err := gs.LoadCategory(ctx, "Museum")
	require.NoError(t, err)
}

func TestSchedulerImmediateRunAndStop(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	gs := store.NewMemoryGraph()
	s := NewScheduler(newTestPipeline(src, gs, nil, museum()), time.Hour)

	s.Start(context.Background(), true)
	require.Eventually(t, func() bool {
		_, err := gs.LoadCategory(context.Background(), "Museum")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestSchedulerStopWaitsForRunningRebuild(t *testing.T) {
	src := newFakePOIs()
	src.set("Museum", pairAndOutlier()...)
	src.entered = make(chan struct{})
	src.release = make(chan struct{})
	gs := store.NewMemoryGraph()
	s := NewScheduler(newTestPipeline(src, gs, nil, museum()), time.Hour)

	s.Start(context.Background(), true)
	<-src.entered

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a rebuild was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the rebuild finished")
	}
	assert.False(t, s.running.Load())
	_, err := gs.LoadCategory(context.Background(), "Museum")
	require.NoError(t, err)
}
