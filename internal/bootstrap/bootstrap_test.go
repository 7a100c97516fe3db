package bootstrap_test

import (
	"context"
	"testing"
	"time"

	"github.com/samirrijal/loadgen/internal/bootstrap"
	"github.com/samirrijal/loadgen/internal/pkg/config"
)

func TestOpen_AllDisabled(t *testing.T) {
	cfg := &config.Config{}

	b, err := bootstrap.Open(context.Background(), cfg, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer b.Close()

	if b.DB != nil || b.Cache != nil || b.Publisher != nil {
		t.Errorf("expected no backends, got %+v", b)
	}
	if b.Repository() != nil {
		t.Error("expected nil repository without a database")
	}
}

func TestOpen_RequireDisabledDB(t *testing.T) {
	if _, err := bootstrap.Open(context.Background(), &config.Config{}, true); err == nil {
		t.Fatal("expected error when the database is required but disabled")
	}
}

func TestRunnerConfig_NoBackends(t *testing.T) {
	cfg := &config.Config{Load: config.LoadConfig{HTTPTimeout: time.Second, MaxVUsers: 9, Seed: 3, Publish: true}}

	rc := bootstrap.RunnerConfig(cfg, &bootstrap.Backends{}, nil)

	if rc.Hooks == nil || rc.Requester == nil || rc.Random == nil {
		t.Fatalf("expected core wiring, got %+v", rc)
	}
	if rc.Coordinator != nil || rc.Publisher != nil {
		t.Errorf("expected nil coordinator and publisher, got %v / %v", rc.Coordinator, rc.Publisher)
	}
	if rc.MaxVUsers != 9 {
		t.Errorf("expected max vusers 9, got %d", rc.MaxVUsers)
	}
	if _, err := rc.Hooks.Lookup("generateRandomData"); err != nil {
		t.Errorf("expected generateRandomData registered: %v", err)
	}
}
