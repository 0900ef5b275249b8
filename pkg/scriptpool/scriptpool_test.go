package scriptpool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/config"
	"github.com/jsworker/jsworker/pkg/scriptpool"
)

func newTestPool(t *testing.T, mutate func(*scriptpool.Config)) *scriptpool.Pool {
	t.Helper()
	cfg := scriptpool.Config{
		Pool: config.PoolConfig{
			ThreadCount:       2,
			EnqueueFullWait:   50 * time.Millisecond,
			DequeueEmptyWait:  5 * time.Millisecond,
			WorkerIdleSleep:   2 * time.Millisecond,
			MicrotaskDrainCap: 100,
			TimerBucketCount:  16,
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := scriptpool.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestSubmitSourceCompletesSuccessfully(t *testing.T) {
	p := newTestPool(t, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	require.NoError(t, p.SubmitSource("2 + 2;", func(res scriptpool.Result, arg any) {
		gotErr = res.Err
		wg.Done()
	}, nil))

	wg.Wait()
	assert.NoError(t, gotErr)
}

func TestSubmitSourceEmptyIsInvalidInput(t *testing.T) {
	p := newTestPool(t, nil)
	err := p.SubmitSource("", func(scriptpool.Result, any) {}, nil)
	require.Error(t, err)

	var spErr *scriptpool.Error
	require.ErrorAs(t, err, &spErr)
	assert.Equal(t, scriptpool.KindInvalidInput, spErr.Kind)
}

func TestSubmitSourceAsAllowsSequentialSubmissionsUnderQuota(t *testing.T) {
	secret := []byte("test-secret")
	p := newTestPool(t, func(cfg *scriptpool.Config) {
		cfg.TenantSecret = secret
		cfg.TenantMaxInFlight = 1
	})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant": "acme"})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)

	tenant, err := scriptpool.ParseTenantToken(signed, secret)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.SubmitSourceAs(tenant, `
		var n = 0;
		for (var i = 0; i < 1e7; i++) { n += i; }
	`, func(scriptpool.Result, any) {}, nil))

	close(started)
	_ = release

	// A second submission under the same tenant should eventually succeed
	// once the first drains (can't deterministically catch it mid-flight
	// without a real blocking host call, so this only checks the happy path
	// of sequential submissions against the quota).
	require.Eventually(t, func() bool {
		return p.SubmitSourceAs(tenant, "1;", func(scriptpool.Result, any) {}, nil) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestWaitForIdleAndStats(t *testing.T) {
	p := newTestPool(t, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, p.SubmitSource("1;", func(scriptpool.Result, any) {}, nil))
	}
	require.NoError(t, p.WaitForIdle(time.Second))

	stats := p.Stats()
	assert.Equal(t, int64(5), stats.CompletedTasks)
}
