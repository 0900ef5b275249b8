package vm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/vm"
)

func newTestRuntime(t *testing.T) *vm.Runtime {
	t.Helper()
	rt := vm.New(vm.Options{MaxContexts: 16, TimerBuckets: 16, MicrotaskDrainCap: 100})
	t.Cleanup(rt.Close)
	return rt
}

// pumpLoop steps the runtime's event loop until deadline, giving armed
// timers a chance to fire.
func pumpLoop(rt *vm.Runtime, deadline time.Duration) {
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		rt.RunLoopOnce()
		time.Sleep(time.Millisecond)
	}
}

func TestEvalSourceWithoutTimersCompletesImmediately(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource("1 + 1;", func(res vm.Result, arg any) {
		done <- res
	}, nil))

	select {
	case res := <-done:
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired for a context with no timers")
	}
	assert.Equal(t, 0, rt.LiveContexts())
}

// TestSetTimeoutDefersReclamationUntilFired is End-to-End Scenario 2: a
// context that arms a one-shot timer during its initial body must not be
// reclaimed (and its completion callback must not fire) until that timer
// fires.
func TestSetTimeoutDefersReclamationUntilFired(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource(`setTimeout(function() {}, 10);`, func(res vm.Result, arg any) {
		done <- res
	}, nil))

	select {
	case <-done:
		t.Fatal("completion callback fired before the armed timer did")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, 1, rt.LiveContexts(), "context must stay live while its timer is outstanding")

	pumpLoop(rt, 200*time.Millisecond)

	select {
	case res := <-done:
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired after the timer fired")
	}
	assert.Equal(t, 0, rt.LiveContexts(), "context must be reclaimed once its last timer fires")
}

// TestClearTimeoutReclaimsContext is End-to-End Scenario 3: clearing a
// context's last outstanding timer must reclaim it immediately, without
// ever invoking the timer's callback.
func TestClearTimeoutReclaimsContext(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource(`
		var fired = false;
		var id = setTimeout(function() { fired = true; }, 50);
		clearTimeout(id);
	`, func(res vm.Result, arg any) {
		done <- res
	}, nil))

	select {
	case res := <-done:
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired after the only timer was cleared")
	}
	assert.Equal(t, 0, rt.LiveContexts(), "context must be reclaimed once its last timer is cleared")

	pumpLoop(rt, 80*time.Millisecond)
	assert.Equal(t, 0, rt.LiveContexts(), "reclamation must not regress once the cleared timer's original deadline passes")
}

func TestSetIntervalKeepsContextAliveAcrossFires(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource(`
		var fires = 0;
		var id = setInterval(function() {
			fires++;
			if (fires >= 3) { clearInterval(id); }
		}, 5);
	`, func(res vm.Result, arg any) {
		done <- res
	}, nil))

	pumpLoop(rt, 50*time.Millisecond)
	assert.Equal(t, 0, rt.LiveContexts(), "context must outlive multiple periodic fires and only reclaim on clearInterval")

	select {
	case res := <-done:
		assert.NoError(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("completion callback never fired after the interval was cleared")
	}
}

func TestEvalSourceSurfacesScriptError(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource(`throw new Error('boom');`, func(res vm.Result, arg any) {
		done <- res
	}, nil))

	res := <-done
	assert.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
}

func TestClearTimeoutOnUnknownIDIsANoOp(t *testing.T) {
	rt := newTestRuntime(t)

	done := make(chan vm.Result, 1)
	require.NoError(t, rt.EvalSource(`clearTimeout(99999);`, func(res vm.Result, arg any) {
		done <- res
	}, nil))

	res := <-done
	assert.NoError(t, res.Err)
}
