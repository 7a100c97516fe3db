package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/samirrijal/loadgen/internal/adapters/http"
	natsadapter "github.com/samirrijal/loadgen/internal/adapters/nats"
	"github.com/samirrijal/loadgen/internal/adapters/postgres"
	"github.com/samirrijal/loadgen/internal/adapters/valkey"
	"github.com/samirrijal/loadgen/internal/bootstrap"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/pkg/logging"
	"github.com/samirrijal/loadgen/internal/pkg/metrics"
	"github.com/samirrijal/loadgen/internal/pkg/telemetry"
)

const poolMetricsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load("loadgen-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	go reportPoolStats(ctx, db)

	backends := &bootstrap.Backends{DB: db}

	// Cache
	var cache *valkey.Cache
	if cfg.Valkey.Enabled {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			backends.Cache = cache
			defer cache.Close()
		}
	}

	rc := bootstrap.RunnerConfig(cfg, backends, appLogger)
	runs := usecases.NewRunService(backends.Repository(), rc)

	deps := &http.Dependencies{
		Runs:  runs,
		Hooks: rc.Hooks,
		DB:    db,
		Cache: cache,
	}

	if cfg.NATS.Enabled {
		// Raw NATS connection for WebSocket relay
		natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats ws conn unavailable", "error", err)
		} else {
			deps.NATS = natsConn
			defer natsConn.Close()
		}

		// Summaries from generators running without a database
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			if err := sub.SubscribeSummaries(ctx, runs.Record); err != nil {
				slog.Warn("subscribe summaries failed", "error", err)
			}
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    2 * 1024 * 1024, // scripts up to 1 MB plus JSON overhead
		AppName:      "loadgen API",
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(poolMetricsInterval)
	defer ticker.Stop()
	for {
		metrics.UpdateDBPoolMetrics(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
