package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/loadgen/internal/adapters/postgres"
	"github.com/samirrijal/loadgen/internal/adapters/valkey"
	"github.com/samirrijal/loadgen/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Runs  *usecases.RunService
	Hooks *usecases.HookRegistry
	NATS  *nats.Conn
	DB    *postgres.DB
	Cache *valkey.Cache
}
