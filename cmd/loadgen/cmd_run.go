package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/samirrijal/loadgen/internal/bootstrap"
	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/pkg/logging"
	"github.com/samirrijal/loadgen/internal/pkg/metrics"
	"github.com/samirrijal/loadgen/internal/pkg/telemetry"
	"github.com/samirrijal/loadgen/internal/report"
)

var errVUsersFailed = errors.New("one or more virtual users failed")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [script.yaml]",
		Short: "Run a test script",
		Long: `Run a test script against its target and print the summary.

The script defaults to load.script from the configuration. Results are
stored in Postgres, counted in Valkey and published to NATS when those
backends are enabled and reachable.

Examples:
  loadgen run loadtest.yaml
  loadgen run --max-vusers 50 --seed 42 loadtest.yaml
  loadgen run --json --metrics-addr :9100 loadtest.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, cfg)

			path := cfg.Load.Script
			if len(args) == 1 {
				path = args[0]
			}
			script, err := config.LoadScript(path)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if cfg.Telemetry.Enabled {
				shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
				if err != nil {
					slog.Warn("telemetry init failed", "error", err)
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}

			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				app := serveMetrics(addr)
				defer func() { _ = app.Shutdown() }()
			}

			backends, err := bootstrap.Open(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer backends.Close()

			svc := usecases.NewRunService(backends.Repository(), bootstrap.RunnerConfig(cfg, backends, slog.Default()))

			name := cfg.Load.Name
			if name == "" {
				name = path
			}
			run, runErr := svc.Run(ctx, name, script)
			if run != nil {
				if err := printRun(cmd, run); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if run.Summary != nil && run.Summary.VUsersFailed > 0 {
				return errVUsersFailed
			}
			return nil
		},
	}

	cmd.Flags().String("name", "", "Run name (defaults to load.name or the script path)")
	cmd.Flags().Int("max-vusers", 0, "Cap on concurrently active virtual users (0 keeps load.max_vusers)")
	cmd.Flags().Uint64("seed", 0, "Seed for the random source (0 keeps load.seed)")
	cmd.Flags().Bool("no-publish", false, "Do not publish results to NATS")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load("loadgen")
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		level = l
	}
	// Logs go to stderr so stdout stays a clean report.
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format).With("service", cfg.Telemetry.ServiceName)
	slog.SetDefault(logger)
	return cfg, nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("name"); v != "" {
		cfg.Load.Name = v
	}
	if v, _ := cmd.Flags().GetInt("max-vusers"); v > 0 {
		cfg.Load.MaxVUsers = v
	}
	if v, _ := cmd.Flags().GetUint64("seed"); v != 0 {
		cfg.Load.Seed = v
	}
	if v, _ := cmd.Flags().GetBool("no-publish"); v {
		cfg.Load.Publish = false
	}
}

func serveMetrics(addr string) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", metrics.Handler())
	go func() {
		if err := app.Listen(addr); err != nil {
			slog.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
	return app
}

func printRun(cmd *cobra.Command, run *domain.Run) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return report.JSON(cmd.OutOrStdout(), run)
	}
	return report.Text(cmd.OutOrStdout(), run)
}
