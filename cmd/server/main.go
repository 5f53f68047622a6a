package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"ata-pipeline/internal/app"
	"ata-pipeline/internal/config"
	"ata-pipeline/internal/logger"
	"ata-pipeline/internal/server"
	"ata-pipeline/internal/trigger"

	zlog "github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// CPU
	// ====================================================================
	//
	// On Fargate the task gets a vCPU share, not whole cores. Left at the
	// default, GOMAXPROCS follows the host core count and the scheduler
	// spins on CPUs the task cannot use. Runs are I/O bound (S3, Postgres),
	// so one logical CPU is the default; GOMAXPROCS overrides it per task.
	// ====================================================================
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	} else {
		runtime.GOMAXPROCS(1)
	}

	// ====================================================================
	// Config, logging, object graph
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)

	a, err := app.New(context.Background(), cfg, app.Options{})
	if err != nil {
		zlog.Fatal().Err(err).Msg("init")
	}

	// ====================================================================
	// Dispatcher
	// ====================================================================
	//
	// /trigger only enqueues. One goroutine runs the pipeline for each
	// queued notification, with concurrency pinned to 1 per object, so
	// two runs never write at the same time.
	// ====================================================================
	d := trigger.NewDispatcher(trigger.NewHandler(a.Runner, cfg.BucketPrefix), cfg.TriggerQueue)
	d.Start()

	// ====================================================================
	// HTTP
	// ====================================================================
	//
	//  - POST /trigger : S3 notification (202 / 400 / 503)
	//  - GET  /metrics : Prometheus scrape
	//  - GET  /health  : ALB target group health check
	// ====================================================================
	h := server.NewHandler(cfg.MaxBodySize, a.Metrics, d)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.Routes(),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 8 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ====================================================================
	// Graceful shutdown
	// ====================================================================
	//
	// ECS sends SIGTERM, then SIGKILL after the grace period. On SIGTERM:
	//   1) stop accepting HTTP requests
	//   2) drain the dispatcher queue; past the deadline the in-flight
	//      run is canceled and its transaction rolls back
	// ====================================================================
	idle := make(chan struct{})
	go func() {
		defer close(idle)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		zlog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Error().Err(err).Msg("http shutdown")
		}
		cancel()

		zlog.Info().Int("queued", d.Len()).Msg("draining dispatcher")
		ctx, cancel = context.WithTimeout(context.Background(), 20*time.Second)
		d.Shutdown(ctx)
		cancel()
	}()

	zlog.Info().Str("addr", cfg.HTTPAddr).Msg("trigger server listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal().Err(err).Msg("http server terminated")
	}

	<-idle
	if err := a.Close(); err != nil {
		zlog.Warn().Err(err).Msg("close")
	}
	zlog.Info().Msg("shutdown complete")
}
