package pool

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// runAdjuster is the optional dynamic-sizing goroutine (spec.md §4.4): on
// every tick it grows the pool when the global queue is backing up and no
// thread is idle, and shrinks it when more than IdleThreshold threads have
// sat idle for a full tick in a row. The shrink decision is additionally
// damped by host CPU load from gopsutil — on an already-idle host there is
// no value in aggressively trimming threads just to spin them back up on
// the next burst, so a low host load relaxes (delays) the shrink rather
// than forcing it.
func (p *Pool) runAdjuster() {
	ticker := time.NewTicker(p.cfg.AdjusterInterval)
	defer ticker.Stop()

	consecutiveIdleTicks := 0

	for {
		select {
		case <-p.adjusterDone:
			return
		case <-ticker.C:
		}

		stats := p.Stats()

		if stats.GlobalQueueDepth > 0 && stats.IdleThreadCount == 0 {
			consecutiveIdleTicks = 0
			p.log.Debug("adjuster growing pool", "current", stats.ThreadCount, "queue_depth", stats.GlobalQueueDepth)
			_ = p.Resize(stats.ThreadCount + 1)
			continue
		}

		if stats.IdleThreadCount > p.cfg.IdleThreshold {
			consecutiveIdleTicks++
		} else {
			consecutiveIdleTicks = 0
		}

		if consecutiveIdleTicks < 2 {
			continue
		}

		hostIdle := hostIsIdle()
		if hostIdle {
			// Host has spare capacity anyway; no urgency to shrink.
			continue
		}

		target := stats.ThreadCount - 1
		if target < 1 {
			continue
		}
		p.log.Debug("adjuster shrinking pool", "current", stats.ThreadCount, "target", target)
		_ = p.Resize(target)
		consecutiveIdleTicks = 0
	}
}

// hostIsIdle reports whether the host's own CPU is already lightly loaded,
// in which case shrinking the pool buys nothing. Best-effort: a gopsutil
// error is treated as "not idle" so the adjuster falls back to its
// thread-idle-only heuristic rather than guessing.
func hostIsIdle() bool {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return false
	}
	return percents[0] < 20.0
}
