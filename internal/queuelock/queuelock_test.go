package queuelock_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyor/internal/queuelock"
	"conveyor/internal/services"
)

func TestTryEnterFailsFastWhenHeld(t *testing.T) {
	lock := queuelock.New()
	require.NoError(t, lock.TryEnterCriticalSection())
	assert.Equal(t, queuelock.Busy, lock.State())

	err := lock.TryEnterCriticalSection()
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrConveyorBusy))

	lock.LeaveCriticalSection()
	assert.True(t, lock.IsIdle())
}

func TestRunningAndBusyExcludeEachOther(t *testing.T) {
	lock := queuelock.New()
	require.True(t, lock.TryStartRunning())
	assert.Equal(t, queuelock.Running, lock.State())

	assert.ErrorIs(t, lock.TryEnterCriticalSection(), services.ErrConveyorBusy)
	assert.False(t, lock.TryStartRunning())

	// A leave from an operation must not release a running job.
	lock.LeaveCriticalSection()
	assert.Equal(t, queuelock.Running, lock.State())

	lock.FinishRunning()
	require.NoError(t, lock.TryEnterCriticalSection())
	assert.False(t, lock.TryStartRunning())
	lock.LeaveCriticalSection()
}

func TestOnlyOneConcurrentWinner(t *testing.T) {
	lock := queuelock.New()
	var winners atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if lock.TryEnterCriticalSection() == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestWithCriticalSectionReleasesAndNotifies(t *testing.T) {
	lock := queuelock.New()
	var notified atomic.Int32
	lock.OnIdle(func() { notified.Add(1) })

	boom := errors.New("boom")
	err := lock.WithCriticalSection(func() error {
		assert.Equal(t, queuelock.Busy, lock.State())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, lock.IsIdle())
	assert.Equal(t, int32(1), notified.Load())

	require.True(t, lock.TryStartRunning())
	lock.FinishRunning()
	assert.Equal(t, int32(2), notified.Load())
	assert.Equal(t, "IDLE", lock.State().String())
}

func TestAbandonRunningSkipsCallbacks(t *testing.T) {
	lock := queuelock.New()
	var notified atomic.Int32
	lock.OnIdle(func() { notified.Add(1) })

	require.True(t, lock.TryStartRunning())
	lock.AbandonRunning()
	assert.True(t, lock.IsIdle())
	assert.Zero(t, notified.Load())

	require.NoError(t, lock.TryEnterCriticalSection())
	lock.AbandonRunning()
	assert.Equal(t, queuelock.Busy, lock.State())
	lock.LeaveCriticalSection()
}
