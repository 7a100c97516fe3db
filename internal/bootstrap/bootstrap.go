// Package bootstrap opens the optional backends described by config and wires
// them into a runner configuration shared by the loadgen CLI and the worker.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	httpadapter "github.com/samirrijal/loadgen/internal/adapters/http"
	natsadapter "github.com/samirrijal/loadgen/internal/adapters/nats"
	"github.com/samirrijal/loadgen/internal/adapters/postgres"
	"github.com/samirrijal/loadgen/internal/adapters/valkey"
	"github.com/samirrijal/loadgen/internal/core/ports"
	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/pkg/metrics"
	"github.com/samirrijal/loadgen/internal/pkg/randutil"
)

// Backends holds whichever external systems could be reached.
type Backends struct {
	DB        *postgres.DB
	Cache     *valkey.Cache
	Publisher *natsadapter.Publisher
}

// Open connects to every enabled backend. Unreachable backends are logged and
// skipped, except the database when requireDB is set.
func Open(ctx context.Context, cfg *config.Config, requireDB bool) (*Backends, error) {
	b := &Backends{}

	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		switch {
		case err == nil:
			b.DB = db
		case requireDB:
			return nil, fmt.Errorf("database: %w", err)
		default:
			slog.Warn("database unavailable, runs will not be stored", "error", err)
		}
	} else if requireDB {
		return nil, fmt.Errorf("database is disabled but required")
	}

	if cfg.Valkey.Enabled {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			b.Cache = cache
		}
	}

	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			b.Publisher = pub
		}
	}

	return b, nil
}

// Repository returns the run repository, or nil without a database.
func (b *Backends) Repository() ports.RunRepository {
	if b.DB == nil {
		return nil
	}
	return postgres.NewRunRepo(b.DB)
}

// Close releases every open backend.
func (b *Backends) Close() {
	if b.Publisher != nil {
		b.Publisher.Close()
	}
	if b.Cache != nil {
		b.Cache.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
}

// RunnerConfig builds the runner wiring: the fasthttp requester, the default
// hooks over a seeded random source, Prometheus observers and whichever
// backends are open.
func RunnerConfig(cfg *config.Config, b *Backends, logger *slog.Logger) usecases.RunnerConfig {
	rng := randutil.New(cfg.Load.Seed)
	rc := usecases.RunnerConfig{
		Hooks:     usecases.DefaultHooks(rng),
		Requester: httpadapter.NewClient(cfg.Load.HTTPTimeout),
		Random:    rng,
		Observer:  metrics.NewRecorder(),
		Events:    metrics.NewEmitter(),
		MaxVUsers: cfg.Load.MaxVUsers,
		Logger:    logger,
	}
	if b == nil {
		return rc
	}
	// Assign only non-nil adapters so the interfaces stay nil when absent.
	if b.Cache != nil {
		rc.Coordinator = b.Cache
	}
	if b.Publisher != nil && cfg.Load.Publish {
		rc.Publisher = b.Publisher
	}
	return rc
}
