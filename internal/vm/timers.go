package vm

import (
	"time"

	"github.com/dop251/goja"

	"github.com/jsworker/jsworker/internal/timer"
)

// installTimerGlobals binds setTimeout/setInterval/clearTimeout/
// clearInterval and queueMicrotask onto ctx's global object. All four run
// on the owning worker goroutine only, per spec.md §4.2.
func installTimerGlobals(ctx *Context) {
	rt := ctx.rt
	g := ctx.goja

	_ = g.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		return rt.jsArmTimer(ctx, call, timer.OneShot)
	})
	_ = g.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		return rt.jsArmTimer(ctx, call, timer.Periodic)
	})
	_ = g.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		return rt.jsClearTimer(ctx, call)
	})
	_ = g.Set("clearInterval", func(call goja.FunctionCall) goja.Value {
		return rt.jsClearTimer(ctx, call)
	})
	_ = g.Set("queueMicrotask", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(g.NewTypeError("queueMicrotask argument must be a function"))
		}
		ctx.queueMicrotask(func() {
			_, _ = fn(goja.Undefined())
		})
		return goja.Undefined()
	})
}

// jsArmTimer implements the shared body of setTimeout/setInterval:
// validate arguments, allocate and register a Timer Record, schedule it on
// the loop, and return the new id. spec.md §4.2.
func (rt *Runtime) jsArmTimer(ctx *Context, call goja.FunctionCall, mode timer.Mode) goja.Value {
	g := ctx.goja

	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(g.NewTypeError("timer callback must be a function"))
	}

	delayArg := call.Argument(1)
	delayMS := int64(0)
	if !goja.IsUndefined(delayArg) {
		delayMS = delayArg.ToInteger()
	}
	if delayMS < 0 {
		delayMS = 0
	}
	delay := time.Duration(delayMS) * time.Millisecond

	rt.mu.Lock()
	id := rt.nextTimerID
	rt.nextTimerID++
	if rt.nextTimerID <= 0 { // wrap spec.md's timer-id counter from INT_MAX back to 1
		rt.nextTimerID = 1
	}
	fireAt := time.Now().Add(delay)
	rec := &timer.Record{
		ID:     id,
		Owner:  ctx,
		Mode:   mode,
		Delay:  delay,
		FireAt: fireAt,
	}
	rec.Callback = func() {
		if _, err := fn(goja.Undefined()); err != nil {
			rt.log.Warn("timer callback failed", "context", ctx.id, "timer", id, "error", err)
		}
	}
	rt.timers.Insert(rec)
	rt.loop.Schedule(id, fireAt)
	ctx.activeTimers++
	rt.mu.Unlock()

	return g.ToValue(id)
}

// jsClearTimer implements clearTimeout/clearInterval: an O(1) lookup by id
// that is a no-op for an unknown, already-fired, or already-cleared id
// (spec.md §4.2, §8 idempotence properties).
func (rt *Runtime) jsClearTimer(ctx *Context, call goja.FunctionCall) goja.Value {
	idArg := call.Argument(0)
	if goja.IsUndefined(idArg) {
		return goja.Undefined()
	}
	id := int32(idArg.ToInteger())

	rec := rt.timers.Remove(id)
	if rec == nil {
		return goja.Undefined()
	}

	rt.mu.Lock()
	rt.loop.Cancel(id)
	owner, _ := rec.Owner.(*Context)
	becameFree := false
	if owner != nil {
		owner.activeTimers--
		becameFree = owner.activeTimers == 0 && owner.pendingFree
	}
	rt.mu.Unlock()

	if becameFree {
		rt.teardown(owner)
	}
	return goja.Undefined()
}
