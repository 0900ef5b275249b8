// Package vm implements the Worker Runtime (spec.md §4.2): the
// single-goroutine execution substrate that multiplexes many short-lived
// Execution Contexts over goja, the scripting engine this module treats as
// an external collaborator.
//
// goja has no notion of multiple realms within one engine instance the way
// the original C design's QuickJS contexts do, so this port gives each
// Context its own *goja.Runtime (cheap to create, and genuinely isolates
// per-job global state) while keeping the event loop, Timer Registry, and
// live-context bookkeeping — the parts that matter for the lifecycle rules
// this package exists to get right — shared at the Runtime level. See
// DESIGN.md for the full rationale.
package vm

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/timer"
)

// Errors returned by Runtime operations, matching the error kinds named in
// spec.md §7.
var (
	ErrCapacity  = errors.New("vm: runtime is at max context capacity")
	ErrClosed    = errors.New("vm: runtime is closed")
	ErrNilSource = errors.New("vm: empty source")
	ErrNilProgram = errors.New("vm: nil bytecode program")
)

// CompletionFunc is a job's completion callback, bound to the Context that
// ran it and invoked exactly once, after the Context's resources are
// released (spec.md §4.2 free_context).
type CompletionFunc func(res Result, arg any)

// Result is what a Context reports to its completion callback.
type Result struct {
	Err   error
	Value goja.Value
}

// HostAPIInstaller installs script-visible globals other than the core
// timer bindings (console, Headers, URL, Event/EventTarget — spec.md §1
// lists these as out-of-scope external collaborators; pkg/hostapi supplies
// a default implementation).
type HostAPIInstaller interface {
	Install(ctx *Context) error
}

// Options configures a new Runtime.
type Options struct {
	MaxContexts       int
	TimerBuckets      int
	MicrotaskDrainCap int
	Installer         HostAPIInstaller
	Logger            logger.Logger
}

// Runtime is one Worker Runtime: the event loop, Timer Registry, and
// live-context bookkeeping owned by exactly one worker goroutine.
type Runtime struct {
	mu sync.Mutex // guards contexts, nextContextID, nextTimerID — spec.md's context_mutex

	maxContexts   int
	contexts      map[uint64]*Context
	nextContextID uint64
	nextTimerID   int32

	timers            *timer.Registry
	loop              *loop
	microtaskDrainCap int
	installer         HostAPIInstaller
	log               logger.Logger

	boxKey string
	closed bool
}

// New creates a Worker Runtime. Must only be used from one goroutine for
// its entire lifetime.
func New(opts Options) *Runtime {
	if opts.MicrotaskDrainCap <= 0 {
		opts.MicrotaskDrainCap = 1000
	}
	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}

	var tok [16]byte
	_, _ = rand.Read(tok[:])

	return &Runtime{
		maxContexts:       opts.MaxContexts,
		contexts:          make(map[uint64]*Context),
		nextTimerID:       1,
		timers:            timer.New(opts.TimerBuckets),
		loop:              newLoop(),
		microtaskDrainCap: opts.MicrotaskDrainCap,
		installer:         opts.Installer,
		log:               opts.Logger,
		boxKey:            "__ctx_" + hex.EncodeToString(tok[:]),
	}
}

// Context is one short-lived Execution Context: per-spec, an engine context
// handle, a back-pointer to its Runtime, a completion callback, and the
// active-timer/pending-free bookkeeping that governs reclamation.
type Context struct {
	id   uint64
	rt   *Runtime
	goja *goja.Runtime

	complete    CompletionFunc
	completeArg any

	activeTimers int32
	pendingFree  bool
	torndown     bool
	evalErr      error

	// microtasks is this Context's own job queue, drained by DrainJobs.
	// goja resolves promise reaction jobs it creates internally on its own
	// (synchronously, inline with the call that settles them), so this
	// queue exists specifically to back the host-installed
	// queueMicrotask() global (see timers.go) with the bounded-drain,
	// cap-and-warn semantics spec.md §4.2/§6 require — rather than
	// reaching into goja's own unexported job plumbing.
	microtasks []func()
}

// queueMicrotask appends fn to ctx's own microtask queue. Only ever called
// from the owning worker goroutine.
func (ctx *Context) queueMicrotask(fn func()) {
	ctx.microtasks = append(ctx.microtasks, fn)
}

// ID returns the context's id, unique within its Runtime for its lifetime.
func (c *Context) ID() uint64 { return c.id }

// Goja returns the context's own *goja.Runtime, for a HostAPIInstaller to
// bind script-visible globals onto.
func (c *Context) Goja() *goja.Runtime { return c.goja }

// newContextLocked allocates and links a fresh Context. Caller must hold rt.mu.
func (rt *Runtime) newContextLocked(cb CompletionFunc, arg any) (*Context, error) {
	if rt.closed {
		return nil, ErrClosed
	}
	if rt.maxContexts > 0 && len(rt.contexts) >= rt.maxContexts {
		return nil, ErrCapacity
	}

	rt.nextContextID++
	ctx := &Context{
		id:          rt.nextContextID,
		rt:          rt,
		goja:        goja.New(),
		complete:    cb,
		completeArg: arg,
	}
	rt.contexts[ctx.id] = ctx

	rt.boxContext(ctx)
	installTimerGlobals(ctx)
	if rt.installer != nil {
		if err := rt.installer.Install(ctx); err != nil {
			rt.log.Warn("host API install failed", "context", ctx.id, "error", err)
		}
	}

	return ctx, nil
}

// boxContext stores ctx's id on its own goja.Runtime's global object under
// an opaque, per-Runtime random property name (non-writable,
// non-configurable, non-enumerable) — an unforgeable identity in
// lieu of the dedicated hidden slot a native engine could offer (spec.md §9
// design note on exposing an engine-internal pointer to script).
func (rt *Runtime) boxContext(ctx *Context) {
	global := ctx.goja.GlobalObject()
	_ = global.DefineDataProperty(rt.boxKey, ctx.goja.ToValue(ctx.id),
		goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

// EvalSource creates a new Context, evaluates src, drains microtasks, and —
// if no timers were armed — tears the Context down immediately, per
// spec.md §4.2 eval_source.
func (rt *Runtime) EvalSource(src string, cb CompletionFunc, arg any) error {
	if src == "" {
		return ErrNilSource
	}

	rt.mu.Lock()
	ctx, err := rt.newContextLocked(cb, arg)
	rt.mu.Unlock()
	if err != nil {
		return err
	}

	_, evalErr := ctx.goja.RunString(src)
	rt.afterEval(ctx, evalErr)
	return nil
}

// EvalBytecode behaves like EvalSource but runs a precompiled *goja.Program
// (the "bytecode blob" of spec.md) against the Context's fresh runtime.
func (rt *Runtime) EvalBytecode(prog *goja.Program, cb CompletionFunc, arg any) error {
	if prog == nil {
		return ErrNilProgram
	}

	rt.mu.Lock()
	ctx, err := rt.newContextLocked(cb, arg)
	rt.mu.Unlock()
	if err != nil {
		return err
	}

	_, evalErr := ctx.goja.RunProgram(prog)
	rt.afterEval(ctx, evalErr)
	return nil
}

func (rt *Runtime) afterEval(ctx *Context, evalErr error) {
	if evalErr != nil {
		rt.log.Warn("script evaluation failed", "context", ctx.id, "error", evalErr)
		ctx.evalErr = evalErr
	}

	rt.DrainJobs(ctx)

	// Reaching the end of the initial body always makes the context
	// pending-free, even if it armed timers — request_context_free defers
	// the actual teardown until activeTimers drops to zero on its own
	// (spec.md §4.2 step (d)).
	rt.RequestContextFree(ctx)
}

// DrainJobs pumps ctx's microtask queue until empty or the configured
// iteration cap is hit (spec.md §4.2 / §6 microtask-drain cap), logging a
// warning if the cap is reached with jobs still pending. A script that
// requeues itself forever (e.g. via queueMicrotask) is defeated by the cap
// rather than hanging the worker.
func (rt *Runtime) DrainJobs(ctx *Context) {
	for i := 0; i < rt.microtaskDrainCap; i++ {
		if len(ctx.microtasks) == 0 {
			return
		}
		job := ctx.microtasks[0]
		ctx.microtasks = ctx.microtasks[1:]
		rt.runMicrotask(ctx, job)
	}
	if len(ctx.microtasks) > 0 {
		rt.log.Warn("microtask drain cap hit with jobs still pending",
			"context", ctx.id, "cap", rt.microtaskDrainCap, "remaining", len(ctx.microtasks))
	}
}

func (rt *Runtime) runMicrotask(ctx *Context, job func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.log.Error("microtask panicked", "context", ctx.id, "panic", fmt.Sprint(r))
		}
	}()
	job()
}

// RunLoopOnce performs one non-blocking step: fires every timer whose
// deadline has passed, then returns the number of handles (pending timers)
// still active. spec.md §4.2.
func (rt *Runtime) RunLoopOnce() int {
	now := time.Now()

	rt.mu.Lock()
	due := rt.loop.DuePop(now)
	rt.mu.Unlock()

	for _, id := range due {
		rt.fireTimer(id)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.loop.Pending()
}

// RunLoop blocks, stepping the loop until no handles remain.
func (rt *Runtime) RunLoop() {
	for {
		rt.mu.Lock()
		deadline, ok := rt.loop.NextDeadline()
		rt.mu.Unlock()
		if !ok {
			return
		}
		if wait := time.Until(deadline); wait > 0 {
			time.Sleep(wait)
		}
		if rt.RunLoopOnce() == 0 {
			return
		}
	}
}

func (rt *Runtime) fireTimer(id int32) {
	rec := rt.timers.Find(id)
	if rec == nil {
		return // cancelled between scheduling and firing
	}
	ctx, _ := rec.Owner.(*Context)
	if ctx == nil || ctx.torndown {
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				rt.log.Error("timer callback panicked", "context", ctx.id, "timer", id, "panic", fmt.Sprint(r))
			}
		}()
		rec.Callback()
	}()

	if rec.Mode == timer.Periodic {
		// A callback that cleared its own id has already removed the record;
		// rescheduling it would leave a stale entry on the loop.
		if rt.timers.Find(id) != nil {
			rt.mu.Lock()
			rec.FireAt = time.Now().Add(rec.Delay)
			rt.loop.Schedule(id, rec.FireAt)
			rt.mu.Unlock()
		}
		rt.DrainJobs(ctx)
		return
	}

	if rt.timers.Remove(id) == nil {
		// The callback cleared its own id; jsClearTimer already adjusted
		// activeTimers and tore the context down if that was due.
		rt.DrainJobs(ctx)
		return
	}
	rt.mu.Lock()
	ctx.activeTimers--
	becameFree := ctx.activeTimers == 0 && ctx.pendingFree
	rt.mu.Unlock()

	rt.DrainJobs(ctx)
	if becameFree {
		rt.teardown(ctx)
	}
}

// RequestContextFree marks ctx pending-free; if it has no outstanding
// timers it is torn down immediately, otherwise teardown is deferred until
// the last timer fires or is cancelled (spec.md §4.2 request_context_free).
func (rt *Runtime) RequestContextFree(ctx *Context) {
	rt.mu.Lock()
	ctx.pendingFree = true
	free := ctx.activeTimers == 0
	rt.mu.Unlock()

	if free {
		rt.teardown(ctx)
	}
}

// CancelContextTimers stops and removes every Timer Record owned by ctx,
// per spec.md §4.2 cancel_context_timers. Returns the count cancelled.
func (rt *Runtime) CancelContextTimers(ctx *Context) int {
	removed := rt.timers.RemoveOwnedBy(ctx)

	rt.mu.Lock()
	for _, rec := range removed {
		rt.loop.Cancel(rec.ID)
	}
	ctx.activeTimers -= int32(len(removed))
	rt.mu.Unlock()

	return len(removed)
}

// teardown unlinks ctx from the live list, cancels any residual timers,
// destroys its engine runtime, and invokes the completion callback — after
// release, so the callback can safely submit further work (spec.md §4.2).
func (rt *Runtime) teardown(ctx *Context) {
	rt.CancelContextTimers(ctx)

	rt.mu.Lock()
	if ctx.torndown {
		rt.mu.Unlock()
		return
	}
	ctx.torndown = true
	delete(rt.contexts, ctx.id)
	rt.mu.Unlock()

	ctx.goja = nil

	if ctx.complete != nil {
		ctx.complete(Result{Err: ctx.evalErr}, ctx.completeArg)
	}
}

// LiveContexts returns the number of contexts not yet reclaimed.
func (rt *Runtime) LiveContexts() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.contexts)
}

// Close marks the Runtime closed, so no new context can be created, then
// tears down every remaining context (cancelling its timers and invoking
// its completion callback). The loop is not stepped first, so pending
// timers are cancelled without firing. If any context or loop entry is
// still present afterwards, a warning with both counts is logged; Close
// never blocks waiting for them.
func (rt *Runtime) Close() {
	rt.mu.Lock()
	rt.closed = true
	live := make([]*Context, 0, len(rt.contexts))
	for _, ctx := range rt.contexts {
		live = append(live, ctx)
	}
	rt.mu.Unlock()

	for _, ctx := range live {
		rt.teardown(ctx)
	}

	rt.mu.Lock()
	leaked := len(rt.contexts)
	pending := rt.loop.Pending()
	rt.mu.Unlock()

	if leaked > 0 || pending > 0 {
		rt.log.Warn("runtime close found residual handles after teardown sweep",
			"leaked_contexts", leaked, "pending_timers", pending)
	}
}
