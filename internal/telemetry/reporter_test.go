package telemetry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/pool"
	"github.com/jsworker/jsworker/internal/telemetry"
)

type fakeStatsSource struct {
	calls int
}

func (f *fakeStatsSource) Stats() pool.Stats {
	f.calls++
	return pool.Stats{ThreadCount: 4, IdleThreadCount: 2}
}

func TestPeriodicReporterInvokesStatsOnSchedule(t *testing.T) {
	src := &fakeStatsSource{}
	r, err := telemetry.NewPeriodicReporter("@every 1s", src, logger.Noop())
	require.NoError(t, err)

	r.Start()
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return src.calls >= 2
	}, 3*time.Second, 5*time.Millisecond)
}

func TestNewPeriodicReporterRejectsBadSpec(t *testing.T) {
	_, err := telemetry.NewPeriodicReporter("not a cron spec", &fakeStatsSource{}, logger.Noop())
	assert.Error(t, err)
}
