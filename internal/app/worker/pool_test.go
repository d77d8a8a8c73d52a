package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsJobsAndDrainsOnClose(t *testing.T) {
	p := NewPool("test", 3, 16)
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("inc", func(context.Context) { n.Add(1) }))
	}
	p.Close()
	assert.Equal(t, int32(10), n.Load())
}

func TestPool_PanicDoesNotKillWorker(t *testing.T) {
	p := NewPool("test", 1, 4)
	var ran atomic.Bool
	require.NoError(t, p.Submit("boom", func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit("after", func(context.Context) { ran.Store(true) }))
	p.Close()
	assert.True(t, ran.Load())
}

func TestPool_FullQueueDrops(t *testing.T) {
	p := NewPool("test", 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	require.NoError(t, p.Submit("block", func(context.Context) {
		once.Do(func() { close(started) })
		<-release
	}))
	<-started
	require.NoError(t, p.Submit("queued", func(context.Context) {}))
	assert.ErrorIs(t, p.Submit("overflow", func(context.Context) {}), ErrQueueFull)
	close(release)
	p.Close()
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool("test", 1, 1)
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit("late", func(context.Context) {}), ErrPoolClosed)
}
