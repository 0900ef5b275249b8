package hostapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/vm"
	"github.com/jsworker/jsworker/pkg/hostapi"
)

func newTestRuntime(t *testing.T) *vm.Runtime {
	t.Helper()
	return vm.New(vm.Options{
		MaxContexts: 8,
		Installer:   hostapi.New(logger.Noop()),
	})
}

func TestConsoleLogDoesNotPanic(t *testing.T) {
	rt := newTestRuntime(t)
	done := make(chan vm.Result, 1)
	err := rt.EvalSource(`console.log("hello", 1, true);`, func(res vm.Result, arg any) {
		done <- res
	}, nil)
	require.NoError(t, err)
	res := <-done
	assert.NoError(t, res.Err)
}

func TestHeadersRoundTrip(t *testing.T) {
	rt := newTestRuntime(t)
	done := make(chan vm.Result, 1)
	err := rt.EvalSource(`
		var h = new Headers();
		h.set("Content-Type", "application/json");
		if (h.get("content-type") !== "application/json") {
			throw new Error("case-insensitive get failed");
		}
	`, func(res vm.Result, arg any) { done <- res }, nil)
	require.NoError(t, err)
	res := <-done
	assert.NoError(t, res.Err)
}

func TestURLParsesFields(t *testing.T) {
	rt := newTestRuntime(t)
	done := make(chan vm.Result, 1)
	err := rt.EvalSource(`
		var u = new URL("https://example.com:8080/path?q=1#frag");
		if (u.hostname !== "example.com") throw new Error("hostname");
		if (u.port !== "8080") throw new Error("port");
		if (u.pathname !== "/path") throw new Error("pathname");
	`, func(res vm.Result, arg any) { done <- res }, nil)
	require.NoError(t, err)
	res := <-done
	assert.NoError(t, res.Err)
}

func TestEventTargetDispatch(t *testing.T) {
	rt := newTestRuntime(t)
	done := make(chan vm.Result, 1)
	err := rt.EvalSource(`
		var target = new EventTarget();
		var seen = false;
		target.addEventListener("ping", function(e) { seen = e.type === "ping"; });
		target.dispatchEvent(new Event("ping"));
		if (!seen) throw new Error("listener not invoked");
	`, func(res vm.Result, arg any) { done <- res }, nil)
	require.NoError(t, err)
	res := <-done
	assert.NoError(t, res.Err)
}
