package pool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/config"
	"github.com/jsworker/jsworker/internal/pool"
	"github.com/jsworker/jsworker/internal/vm"
)

func newTestPool(t *testing.T, cfg config.PoolConfig) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func defaultConfig() config.PoolConfig {
	return config.PoolConfig{
		ThreadCount:           2,
		MaxContextsPerRuntime: 16,
		EnqueueFullWait:       50 * time.Millisecond,
		DequeueEmptyWait:      5 * time.Millisecond,
		WorkerIdleSleep:       2 * time.Millisecond,
		AdjusterInterval:      20 * time.Millisecond,
		MicrotaskDrainCap:     100,
		TimerBucketCount:      16,
		IdleThreshold:         1,
		EnableWorkStealing:    true,
	}
}

func TestSubmitSourceRunsAndCompletes(t *testing.T) {
	p := newTestPool(t, defaultConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	var got vm.Result

	err := p.SubmitSource("1 + 1;", func(res vm.Result, arg any) {
		got = res
		wg.Done()
	}, nil)
	require.NoError(t, err)

	wg.Wait()
	assert.NoError(t, got.Err)
}

func TestSubmitSourceSurfacesScriptError(t *testing.T) {
	p := newTestPool(t, defaultConfig())

	var wg sync.WaitGroup
	wg.Add(1)
	var got vm.Result

	err := p.SubmitSource("throw new Error('boom');", func(res vm.Result, arg any) {
		got = res
		wg.Done()
	}, nil)
	require.NoError(t, err)

	wg.Wait()
	assert.Error(t, got.Err)
}

func TestWaitForIdleReturnsAfterTasksDrain(t *testing.T) {
	p := newTestPool(t, defaultConfig())

	for i := 0; i < 10; i++ {
		require.NoError(t, p.SubmitSource("1;", func(vm.Result, any) {}, nil))
	}

	require.NoError(t, p.WaitForIdle(2*time.Second))
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.CompletedTasks)
	assert.Equal(t, int64(0), stats.PendingTasks)
}

func TestResizeGrowsAndShrinks(t *testing.T) {
	p := newTestPool(t, defaultConfig())

	require.NoError(t, p.Resize(4))
	assert.Equal(t, 4, p.Stats().ThreadCount)

	require.NoError(t, p.Resize(1))
	assert.Eventually(t, func() bool {
		return p.Stats().ThreadCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p := newTestPool(t, defaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	err := p.SubmitSource("1;", func(vm.Result, any) {}, nil)
	assert.ErrorIs(t, err, pool.ErrShutdown)
}
