package hostapi

import (
	"strings"

	"github.com/dop251/goja"
)

// installHeaders installs a minimal, case-insensitive Headers constructor —
// enough for scripts that feature-detect or build request headers without a
// real network stack behind them (there is none; spec.md §1 Non-goals).
func installHeaders(rt *goja.Runtime) error {
	ctor := func(call goja.ConstructorCall) *goja.Object {
		store := make(map[string][]string)
		obj := call.This

		if init := call.Argument(0); !goja.IsUndefined(init) && !goja.IsNull(init) {
			if initObj := init.ToObject(rt); initObj != nil {
				for _, key := range initObj.Keys() {
					store[strings.ToLower(key)] = []string{initObj.Get(key).String()}
				}
			}
		}

		_ = obj.Set("append", func(c goja.FunctionCall) goja.Value {
			k := strings.ToLower(c.Argument(0).String())
			store[k] = append(store[k], c.Argument(1).String())
			return goja.Undefined()
		})
		_ = obj.Set("set", func(c goja.FunctionCall) goja.Value {
			k := strings.ToLower(c.Argument(0).String())
			store[k] = []string{c.Argument(1).String()}
			return goja.Undefined()
		})
		_ = obj.Set("get", func(c goja.FunctionCall) goja.Value {
			k := strings.ToLower(c.Argument(0).String())
			vals, ok := store[k]
			if !ok || len(vals) == 0 {
				return goja.Null()
			}
			return rt.ToValue(strings.Join(vals, ", "))
		})
		_ = obj.Set("has", func(c goja.FunctionCall) goja.Value {
			_, ok := store[strings.ToLower(c.Argument(0).String())]
			return rt.ToValue(ok)
		})
		_ = obj.Set("delete", func(c goja.FunctionCall) goja.Value {
			delete(store, strings.ToLower(c.Argument(0).String()))
			return goja.Undefined()
		})
		return nil
	}

	return rt.Set("Headers", ctor)
}
