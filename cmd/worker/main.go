package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/loadgen/internal/bootstrap"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/pkg/logging"
	"github.com/samirrijal/loadgen/internal/pkg/telemetry"
	"github.com/samirrijal/loadgen/internal/workflows"
)

func main() {
	cfg, err := config.Load("loadgen-worker")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Workflow runs are listed by the API, so the database is required here.
	backends, err := bootstrap.Open(ctx, cfg, true)
	if err != nil {
		log.Fatalf("backends: %v", err)
	}
	defer backends.Close()

	runs := usecases.NewRunService(backends.Repository(), bootstrap.RunnerConfig(cfg, backends, logger))

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.LoadTestWorkflow)
	w.RegisterActivity(&workflows.LoadTestActivities{Runs: runs})

	slog.Info("load test worker started", "task_queue", cfg.Temporal.TaskQueue, "namespace", cfg.Temporal.Namespace)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
