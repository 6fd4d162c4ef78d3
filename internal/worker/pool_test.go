package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak, done int32

	for i := 0; i < 6; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
		}))
	}
	p.Wait()

	assert.Equal(t, int32(6), done)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestPoolRecoversPanics(t *testing.T) {
	p := NewPool(1)
	var ran atomic.Bool

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { ran.Store(true) }))
	p.Wait()
	assert.True(t, ran.Load())
}

func TestPoolShutdownCancelsAfterDeadline(t *testing.T) {
	p := NewPool(1)
	started := make(chan struct{})
	var cancelled atomic.Bool

	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	assert.True(t, cancelled.Load())
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolClosed)
}
