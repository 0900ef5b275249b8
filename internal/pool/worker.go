package pool

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/jsworker/jsworker/internal/queue"
	"github.com/jsworker/jsworker/internal/vm"
)

// threadData is one worker goroutine's private state: its own Worker
// Runtime, its own local queue, and the counters ThreadStats reports.
type threadData struct {
	id      int
	pool    *Pool
	runtime *vm.Runtime
	local   *queue.Queue

	idle atomic.Bool

	retire chan struct{} // closed by Resize/Shutdown to ask this worker to exit
	done   chan struct{} // closed by the worker goroutine on exit

	tasksProcessed atomic.Int64
	idleTimeMS     atomic.Int64
	busyTimeMS     atomic.Int64
}

// runWorker is the worker goroutine's main loop: dequeue (global, then
// local, then steal), execute, step the runtime's event loop, repeat, until
// retired. spec.md §4.4 / §2.
func (p *Pool) runWorker(td *threadData) {
	defer p.wg.Done()
	defer close(td.done)

	for {
		select {
		case <-td.retire:
			return
		default:
		}

		task, ok := p.dequeueFor(td)
		if !ok {
			idleStart := time.Now()
			td.idle.Store(true)
			td.runtime.RunLoopOnce()
			time.Sleep(p.cfg.WorkerIdleSleep)
			td.idleTimeMS.Add(time.Since(idleStart).Milliseconds())
			td.idle.Store(false)
			continue
		}

		td.idle.Store(false)
		busyStart := time.Now()
		p.executeTask(td, task)
		td.runtime.RunLoopOnce()
		td.busyTimeMS.Add(time.Since(busyStart).Milliseconds())
	}
}

func (p *Pool) dequeueFor(td *threadData) (*Task, bool) {
	if item, ok := p.global.Dequeue(); ok {
		return item.(*Task), true
	}
	if item, ok := td.local.Dequeue(); ok {
		return item.(*Task), true
	}
	if p.cfg.EnableWorkStealing {
		if item, ok := p.stealFrom(td); ok {
			p.metrics.TasksStolen.Inc()
			return item, true
		}
	}
	return nil, false
}

// stealFrom tries every other worker's local queue once, starting at a
// pseudo-random offset so no single worker is preferentially victimized.
func (p *Pool) stealFrom(thief *threadData) (*Task, bool) {
	p.threadsMu.RLock()
	threads := p.threads
	n := len(threads)
	if n <= 1 {
		p.threadsMu.RUnlock()
		return nil, false
	}
	start := rand.Intn(n)
	victims := make([]*threadData, 0, n-1)
	for i := 0; i < n; i++ {
		td := threads[(start+i)%n]
		if td.id != thief.id {
			victims = append(victims, td)
		}
	}
	p.threadsMu.RUnlock()

	for _, victim := range victims {
		if item, ok := victim.local.TryStealOne(); ok {
			return item.(*Task), true
		}
	}
	return nil, false
}

func (p *Pool) executeTask(td *threadData, task *Task) {
	task.StartedAt = time.Now()

	wrapped := func(res vm.Result, arg any) {
		task.Duration = time.Since(task.StartedAt)
		p.metrics.TaskDuration.Observe(task.Duration.Seconds())

		if res.Err != nil {
			p.metrics.TasksFailed.Inc()
			p.metrics.ErrorsTotal.WithLabelValues("script_error").Inc()
			p.log.Warn("task evaluation failed",
				"task", task.ID.String(), "fingerprint", fmt.Sprintf("%x", task.Fingerprint), "error", res.Err)
		} else {
			p.metrics.TasksCompleted.Inc()
		}

		td.tasksProcessed.Add(1)
		p.completedTasks.Add(1)
		p.pendingCount.Add(-1)

		if task.Complete != nil {
			task.Complete(res, arg)
		}
		p.signalIdleWaiters()
	}

	var err error
	switch task.Kind {
	case KindSource:
		err = td.runtime.EvalSource(string(task.Payload), wrapped, task.CompleteArg)
	case KindBytecode:
		err = td.runtime.EvalBytecode(task.Program, wrapped, task.CompleteArg)
	}

	if err != nil {
		p.metrics.ErrorsTotal.WithLabelValues(classifyErr(err)).Inc()
		p.log.Error("failed to start task", "task", task.ID.String(), "error", err)
		p.pendingCount.Add(-1)
		p.signalIdleWaiters()
		if task.Complete != nil {
			task.Complete(vm.Result{Err: err}, task.CompleteArg)
		}
	}
}

func classifyErr(err error) string {
	switch err {
	case vm.ErrCapacity:
		return "capacity"
	case vm.ErrClosed:
		return "closed"
	case vm.ErrNilSource, vm.ErrNilProgram:
		return "invalid_input"
	default:
		return "internal"
	}
}
