// Command jsworker is the example driver for the embedded execution pool:
// it reads a script file from disk, submits it to a pool built from
// internal/config, and optionally serves a read-only stats/health surface
// over HTTP+WebSocket. The file-reader and this HTTP surface are driver
// furniture, not core capabilities — spec.md §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jsworker/jsworker/internal/config"
	"github.com/jsworker/jsworker/internal/logger"
	"github.com/jsworker/jsworker/internal/pool"
	"github.com/jsworker/jsworker/internal/telemetry"
	"github.com/jsworker/jsworker/pkg/scriptpool"
)

const serviceName = "jsworker"

func main() {
	scriptPath := flag.String("script", "", "path to a JavaScript source file to submit")
	serve := flag.Bool("serve", false, "serve a read-only stats/health HTTP+WS surface")
	addr := flag.String("addr", ":8090", "address for the stats/health surface, if -serve is set")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jsworker: failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Logger.Level, Format: cfg.Logger.Format, OutputPath: cfg.Logger.OutputPath})
	log.Info("starting jsworker", "threads", cfg.Pool.ThreadCount)

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    serviceName,
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Fatal("failed to init telemetry", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Close(ctx)
	}()

	p, err := scriptpool.New(scriptpool.Config{Pool: cfg.Pool, Logger: log})
	if err != nil {
		log.Fatal("failed to create pool", "error", err)
	}

	reporter, err := telemetry.NewPeriodicReporter("@every 30s", poolStatsAdapter{p}, log)
	if err != nil {
		log.Fatal("failed to create periodic reporter", "error", err)
	}
	reporter.Start()
	defer reporter.Stop()

	var statsServer *statsServer
	if *serve {
		statsServer = newStatsServer(*addr, p, log)
		statsServer.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statsServer.Shutdown(ctx)
		}()
	}

	if *scriptPath != "" {
		runScriptFile(*scriptPath, p, log)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		log.Warn("pool shutdown did not complete cleanly", "error", err)
	}
}

func runScriptFile(path string, p *scriptpool.Pool, log logger.Logger) {
	src, err := os.ReadFile(path)
	if err != nil {
		log.Error("failed to read script file", "path", path, "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	err = p.SubmitSource(string(src), func(res scriptpool.Result, arg any) {
		defer wg.Done()
		if res.Err != nil {
			log.Warn("script execution failed", "path", path, "error", res.Err)
			return
		}
		log.Info("script execution completed", "path", path)
	}, nil)
	if err != nil {
		log.Error("failed to submit script", "path", path, "error", err)
		return
	}
	wg.Wait()
}

// poolStatsAdapter narrows *scriptpool.Pool to telemetry.StatsSource.
type poolStatsAdapter struct{ pool *scriptpool.Pool }

func (a poolStatsAdapter) Stats() pool.Stats { return a.pool.Stats() }
