// Package scriptpool is the public façade over the embedded execution
// pool: Config, New, the submission API, lifecycle control, and
// introspection. Everything in internal/ is wired together here; callers
// outside this module only ever import this package (and, if they want a
// non-default host API, pkg/hostapi).
package scriptpool

import (
	"context"
	"errors"
	"time"

	"github.com/dop251/goja"

	"github.com/jsworker/jsworker/internal/config"
	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/metrics"
	"github.com/jsworker/jsworker/internal/pool"
	"github.com/jsworker/jsworker/internal/vm"
	"github.com/jsworker/jsworker/pkg/hostapi"
)

// CompletionFunc is a submitted job's completion callback.
type CompletionFunc = vm.CompletionFunc

// Result is what a completion callback receives.
type Result = vm.Result

// Config configures a Pool. TenantMaxInFlight bounds how many in-flight
// contexts a single tenant claim may hold at once when jobs are submitted
// via SubmitSourceAs; 0 disables the quota (the default, anonymous path).
type Config struct {
	Pool              config.PoolConfig
	Installer         vm.HostAPIInstaller
	Logger            logger.Logger
	Metrics           *metrics.Metrics
	TenantSecret      []byte
	TenantMaxInFlight int
}

// Pool is the embedding application's handle on the execution pool.
type Pool struct {
	inner *pool.Pool
	log   logger.Logger
	quota *tenantQuota
}

// New constructs a Pool from cfg and starts its worker goroutines.
func New(cfg Config) (*Pool, error) {
	log := cfg.Logger
	if log == nil {
		log = logger.Noop()
	}
	installer := cfg.Installer
	if installer == nil {
		installer = hostapi.New(log)
	}

	inner, err := pool.New(pool.Options{
		Config:    cfg.Pool,
		Installer: installer,
		Logger:    log,
		Metrics:   cfg.Metrics,
	})
	if err != nil {
		return nil, newError(KindInternal, err)
	}

	return &Pool{
		inner: inner,
		log:   log,
		quota: newTenantQuota(cfg.TenantMaxInFlight),
	}, nil
}

// SubmitSource submits ECMAScript source text for evaluation.
func (p *Pool) SubmitSource(src string, cb CompletionFunc, arg any) error {
	return classifySubmitErr(p.inner.SubmitSource(src, cb, arg))
}

// SubmitBytecode submits a precompiled *goja.Program for evaluation.
func (p *Pool) SubmitBytecode(prog *goja.Program, cb CompletionFunc, arg any) error {
	return classifySubmitErr(p.inner.SubmitBytecode(prog, cb, arg))
}

// SubmitSourceAs submits src on behalf of tenant, refusing the submission
// with a KindQuotaExceeded error if tenant already holds
// Config.TenantMaxInFlight in-flight contexts. This is a purely local,
// in-process quota — see pkg/scriptpool/tenant.go.
func (p *Pool) SubmitSourceAs(tenant TenantToken, src string, cb CompletionFunc, arg any) error {
	if !p.quota.tryAcquire(tenant.Claim) {
		return newError(KindQuotaExceeded, errors.New("tenant in-flight quota exceeded"))
	}

	wrapped := func(res Result, arg any) {
		p.quota.release(tenant.Claim)
		if cb != nil {
			cb(res, arg)
		}
	}

	if err := p.inner.SubmitSource(src, wrapped, arg); err != nil {
		p.quota.release(tenant.Claim)
		return classifySubmitErr(err)
	}
	return nil
}

// Shutdown stops accepting submissions, drains in-flight work, and frees
// every worker's runtime. It respects ctx's deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	return p.inner.Shutdown(ctx)
}

// WaitForIdle blocks until no task is pending or in-flight, or timeout
// elapses.
func (p *Pool) WaitForIdle(timeout time.Duration) error {
	if err := p.inner.WaitForIdle(timeout); err != nil {
		return newError(KindInternal, err)
	}
	return nil
}

// Resize grows or shrinks the pool to exactly newThreadCount workers.
func (p *Pool) Resize(newThreadCount int) error {
	if err := p.inner.Resize(newThreadCount); err != nil {
		return newError(KindInvalidInput, err)
	}
	return nil
}

// Stats returns a pool-wide snapshot.
func (p *Pool) Stats() pool.Stats { return p.inner.Stats() }

// ThreadStats returns the snapshot for the worker with the given id.
func (p *Pool) ThreadStats(id int) (pool.ThreadStats, error) {
	stats, err := p.inner.ThreadStats(id)
	if err != nil {
		return pool.ThreadStats{}, newError(KindInvalidInput, err)
	}
	return stats, nil
}

func classifySubmitErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vm.ErrNilSource), errors.Is(err, vm.ErrNilProgram):
		return newError(KindInvalidInput, err)
	case errors.Is(err, pool.ErrShutdown):
		return newError(KindClosed, err)
	case errors.Is(err, vm.ErrCapacity):
		return newError(KindCapacity, err)
	default:
		return newError(KindInternal, err)
	}
}
