package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDispatcherRunsAndDrains(t *testing.T) {
	d := NewDispatcher(3, 16, zap.NewNop())

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.True(t, d.Submit("count", func(context.Context) { ran.Add(1) }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.EqualValues(t, 10, ran.Load())

	assert.False(t, d.Submit("late", func(context.Context) {}))
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(1, 1, zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, d.Submit("blocker", func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	var queuedRan atomic.Bool
	assert.True(t, d.Submit("queued", func(context.Context) { queuedRan.Store(true) }))
	assert.False(t, d.Submit("dropped", func(context.Context) {}))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.True(t, queuedRan.Load())
}

func TestDispatcherRecoversFromPanics(t *testing.T) {
	d := NewDispatcher(1, 4, zap.NewNop())

	var after atomic.Bool
	require.True(t, d.Submit("boom", func(context.Context) { panic("boom") }))
	require.True(t, d.Submit("after", func(context.Context) { after.Store(true) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
	assert.True(t, after.Load())
}

func TestDispatcherShutdownTimeout(t *testing.T) {
	d := NewDispatcher(1, 1, zap.NewNop())

	release := make(chan struct{})
	defer close(release)
	require.True(t, d.Submit("slow", func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)
}
