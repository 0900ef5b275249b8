package telemetry

import (
	"github.com/robfig/cron/v3"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/pool"
)

// StatsSource is the subset of pool.Pool the reporter needs, narrowed so
// tests can supply a fake without constructing a real Pool.
type StatsSource interface {
	Stats() pool.Stats
}

// PeriodicReporter logs a structured snapshot of pool.Stats on a cron
// schedule, independent of the pool's own 1s adjuster-damping loop — this
// is an observability cadence, not a sizing decision.
type PeriodicReporter struct {
	cron   *cron.Cron
	source StatsSource
	log    logger.Logger
}

// NewPeriodicReporter creates a reporter that logs source.Stats() every
// time spec matches. spec is read by cron/v3's default parser: the standard
// five-field syntax or a descriptor such as "@every 30s". A six-field spec
// with a seconds column (e.g. "*/30 * * * * *") is rejected, and an @every
// interval shorter than one second is rounded up to one second.
func NewPeriodicReporter(spec string, source StatsSource, log logger.Logger) (*PeriodicReporter, error) {
	if log == nil {
		log = logger.Noop()
	}
	r := &PeriodicReporter{
		cron:   cron.New(),
		source: source,
		log:    log,
	}
	if _, err := r.cron.AddFunc(spec, r.report); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PeriodicReporter) report() {
	stats := r.source.Stats()
	r.log.Info("pool stats snapshot",
		"total_tasks", stats.TotalTasks,
		"completed_tasks", stats.CompletedTasks,
		"pending_tasks", stats.PendingTasks,
		"thread_count", stats.ThreadCount,
		"idle_thread_count", stats.IdleThreadCount,
		"global_queue_depth", stats.GlobalQueueDepth,
	)
}

// Start begins the cron scheduler in its own goroutine.
func (r *PeriodicReporter) Start() { r.cron.Start() }

// Stop stops the scheduler, blocking until any in-flight report returns.
func (r *PeriodicReporter) Stop() { <-r.cron.Stop().Done() }
