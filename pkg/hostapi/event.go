package hostapi

import (
	"github.com/dop251/goja"
)

// installEvent installs minimal Event and EventTarget constructors — just
// enough for scripts that feature-detect them or use them as plain message
// carriers between their own callbacks; there is no platform dispatch loop
// behind this (spec.md §1 Non-goals).
func installEvent(rt *goja.Runtime) error {
	eventCtor := func(call goja.ConstructorCall) *goja.Object {
		obj := call.This
		_ = obj.Set("type", call.Argument(0).String())
		_ = obj.Set("defaultPrevented", false)
		_ = obj.Set("preventDefault", func(c goja.FunctionCall) goja.Value {
			_ = obj.Set("defaultPrevented", true)
			return goja.Undefined()
		})
		return nil
	}
	if err := rt.Set("Event", eventCtor); err != nil {
		return err
	}

	targetCtor := func(call goja.ConstructorCall) *goja.Object {
		listeners := make(map[string][]goja.Value)
		obj := call.This

		_ = obj.Set("addEventListener", func(c goja.FunctionCall) goja.Value {
			typ := c.Argument(0).String()
			fn := c.Argument(1)
			if _, ok := goja.AssertFunction(fn); !ok {
				return goja.Undefined()
			}
			listeners[typ] = append(listeners[typ], fn)
			return goja.Undefined()
		})
		_ = obj.Set("removeEventListener", func(c goja.FunctionCall) goja.Value {
			typ := c.Argument(0).String()
			fn := c.Argument(1)
			if _, ok := goja.AssertFunction(fn); !ok {
				return goja.Undefined()
			}
			remaining := listeners[typ][:0]
			for _, l := range listeners[typ] {
				if !sameCallable(l, fn) {
					remaining = append(remaining, l)
				}
			}
			listeners[typ] = remaining
			return goja.Undefined()
		})
		_ = obj.Set("dispatchEvent", func(c goja.FunctionCall) goja.Value {
			evt := c.Argument(0)
			evtObj := evt.ToObject(rt)
			typ := ""
			if evtObj != nil {
				typ = evtObj.Get("type").String()
			}
			for _, l := range listeners[typ] {
				if fn, ok := goja.AssertFunction(l); ok {
					_, _ = fn(evt, evt)
				}
			}
			return rt.ToValue(true)
		})
		return nil
	}
	return rt.Set("EventTarget", targetCtor)
}

// sameCallable compares two listener function values by identity. The
// listeners are kept as goja.Value rather than goja.Callable because a
// Callable is a Go func wrapper, which cannot be compared by identity.
func sameCallable(a, b goja.Value) bool {
	return a.SameAs(b)
}
