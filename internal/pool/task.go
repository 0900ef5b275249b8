package pool

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/jsworker/jsworker/internal/vm"
)

// Kind distinguishes a source-text task from a precompiled-bytecode one.
type Kind int

const (
	KindSource Kind = iota
	KindBytecode
)

// Task is one unit of work submitted to the pool: script source or
// bytecode, a completion callback, and the bookkeeping the pool and its
// metrics/logging need without ever looking at the payload itself.
type Task struct {
	ID      uuid.UUID
	Kind    Kind
	Payload []byte
	Program *goja.Program

	Complete    vm.CompletionFunc
	CompleteArg any

	// Tenant is an optional tenant label. Nothing in this module sets it:
	// pkg/scriptpool.SubmitSourceAs keeps the tenant claim in its own quota
	// and does not copy it onto the Task, so it is empty for every task.
	Tenant string

	SubmittedAt time.Time
	StartedAt   time.Time
	Duration    time.Duration

	// Fingerprint is a blake2b-128 digest of Payload (or of Program's
	// pointer identity for bytecode tasks, which carry no raw source), so
	// logs and metric labels can name a task without ever holding or
	// printing raw script text.
	Fingerprint [16]byte
}

func newSourceTask(src string, cb vm.CompletionFunc, arg any) *Task {
	return &Task{
		ID:          uuid.New(),
		Kind:        KindSource,
		Payload:     []byte(src),
		Complete:    cb,
		CompleteArg: arg,
		SubmittedAt: time.Now(),
		Fingerprint: fingerprint([]byte(src)),
	}
}

func newBytecodeTask(prog *goja.Program, cb vm.CompletionFunc, arg any) *Task {
	return &Task{
		ID:          uuid.New(),
		Kind:        KindBytecode,
		Program:     prog,
		Complete:    cb,
		CompleteArg: arg,
		SubmittedAt: time.Now(),
		Fingerprint: fingerprint([]byte(fmt.Sprintf("%p", prog))),
	}
}

func fingerprint(data []byte) [16]byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only returns an error for an out-of-range size or bad key, both
		// constant here, so this can't happen at runtime.
		panic(err)
	}
	h.Write(data)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// release drops Task's payload references so a submitter's queued-but-never-run
// task doesn't keep a large script string or bytecode blob alive after
// Queue.Close drains it during shutdown.
func (t *Task) release() {
	t.Payload = nil
	t.Program = nil
}
