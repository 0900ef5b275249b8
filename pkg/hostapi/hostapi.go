// Package hostapi provides the default script-visible globals a Worker
// Runtime installs into every fresh execution context beyond the core
// timer bindings: console, Headers, URL, and Event/EventTarget. These are
// explicitly out of the core's scope (spec.md §1) — this package is a
// separate, swappable vm.HostAPIInstaller a caller may replace entirely.
package hostapi

import (
	"github.com/dop251/goja"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/vm"
)

// Installer is the default vm.HostAPIInstaller, bridging console.* calls to
// an internal/logger.Logger.
type Installer struct {
	Log logger.Logger
}

// New creates an Installer. A nil log falls back to logger.Noop().
func New(log logger.Logger) *Installer {
	if log == nil {
		log = logger.Noop()
	}
	return &Installer{Log: log}
}

// Install implements vm.HostAPIInstaller.
func (in *Installer) Install(ctx *vm.Context) error {
	rt := ctx.Goja()
	if err := installConsole(rt, in.Log); err != nil {
		return err
	}
	if err := installHeaders(rt); err != nil {
		return err
	}
	if err := installURL(rt); err != nil {
		return err
	}
	return installEvent(rt)
}

func installConsole(rt *goja.Runtime, log logger.Logger) error {
	console := rt.NewObject()
	_ = console.Set("log", consoleFunc(log.Info))
	_ = console.Set("info", consoleFunc(log.Info))
	_ = console.Set("warn", consoleFunc(log.Warn))
	_ = console.Set("error", consoleFunc(log.Error))
	_ = console.Set("debug", consoleFunc(log.Debug))
	return rt.Set("console", console)
}

func consoleFunc(logFn func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			args = append(args, a.Export())
		}
		logFn("console", "args", args)
		return goja.Undefined()
	}
}
