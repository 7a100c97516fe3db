package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

// newTestRootCmd creates a root command with persistent flags for testing subcommands
func newTestRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "loadgen",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level")
	return rootCmd
}

// isolateBackends keeps config.Load from reaching for Postgres, NATS or Valkey.
func isolateBackends(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("LOADGEN_DATABASE_ENABLED", "false")
	t.Setenv("LOADGEN_NATS_ENABLED", "false")
	t.Setenv("LOADGEN_VALKEY_ENABLED", "false")
	t.Setenv("LOADGEN_LOG_LEVEL", "error")
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	root := newTestRootCmd()
	root.AddCommand(newVersionCmd())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out.String(), version) {
		t.Errorf("output %q missing version %q", out.String(), version)
	}
}

func TestHooksCmd(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		root := newTestRootCmd()
		root.AddCommand(newHooksCmd())
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"hooks"})

		if err := root.Execute(); err != nil {
			t.Fatalf("hooks failed: %v", err)
		}
		if !strings.Contains(out.String(), "generateRandomData") {
			t.Errorf("expected generateRandomData in %q", out.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		root := newTestRootCmd()
		root.AddCommand(newHooksCmd())
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"hooks", "--json"})

		if err := root.Execute(); err != nil {
			t.Fatalf("hooks failed: %v", err)
		}
		var got struct {
			Hooks []string `json:"hooks"`
		}
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got.Hooks) == 0 {
			t.Error("expected at least one hook")
		}
	})
}

func TestValidateCmd(t *testing.T) {
	good := writeScript(t, `
config:
  target: http://sut.local
  phases:
    - duration: 1
      arrival_count: 1
scenarios:
  - before_scenario: [generateRandomData]
    flow:
      - request:
          url: /orders/{{ order_num }}
`)
	unknownHook := writeScript(t, `
config:
  target: http://sut.local
  phases:
    - duration: 1
      arrival_count: 1
scenarios:
  - before_scenario: [chargeCard]
    flow:
      - request:
          url: /
`)

	t.Run("valid", func(t *testing.T) {
		root := newTestRootCmd()
		root.AddCommand(newValidateCmd())
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"validate", good})

		if err := root.Execute(); err != nil {
			t.Fatalf("validate failed: %v", err)
		}
		if !strings.HasPrefix(out.String(), "ok") {
			t.Errorf("expected ok line, got %q", out.String())
		}
	})

	t.Run("unknown hook", func(t *testing.T) {
		root := newTestRootCmd()
		root.AddCommand(newValidateCmd())
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs([]string{"validate", "--json", good, unknownHook})

		err := root.Execute()
		if err == nil {
			t.Fatal("expected error for invalid script")
		}
		if !strings.Contains(err.Error(), "1 of 2") {
			t.Errorf("unexpected error: %v", err)
		}

		var results []struct {
			Path  string `json:"path"`
			Valid bool   `json:"valid"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(out.Bytes(), &results); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(results) != 2 || !results[0].Valid || results[1].Valid {
			t.Fatalf("unexpected results: %+v", results)
		}
		if !strings.Contains(results[1].Error, "chargeCard") {
			t.Errorf("expected hook name in error, got %q", results[1].Error)
		}
	})
}

func TestRunCmd(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/orders/0.") {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	isolateBackends(t)
	path := writeScript(t, `
config:
  target: `+srv.URL+`
  phases:
    - duration: 100ms
      arrival_count: 3
scenarios:
  - before_scenario: [generateRandomData]
    flow:
      - request:
          url: /orders/{{ order_num }}
          expect_status: 200
`)

	root := newTestRootCmd()
	root.AddCommand(newRunCmd())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--json", "--seed", "42", "--name", "smoke", path})

	if err := root.Execute(); err != nil {
		t.Fatalf("run failed: %v\n%s", err, out.String())
	}

	var run domain.Run
	if err := json.Unmarshal(out.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v\n%s", err, out.String())
	}
	if run.Name != "smoke" {
		t.Errorf("expected name smoke, got %q", run.Name)
	}
	if run.Status != domain.RunStatusFinished {
		t.Errorf("expected finished status, got %q", run.Status)
	}
	if run.Summary == nil || run.Summary.VUsersCompleted != 3 {
		t.Fatalf("expected 3 completed VUs, got %+v", run.Summary)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests with a random order number, got %d", hits.Load())
	}
}

func TestRunCmd_FailedVUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	isolateBackends(t)
	path := writeScript(t, `
config:
  target: `+srv.URL+`
  phases:
    - duration: 50ms
      arrival_count: 2
scenarios:
  - flow:
      - request:
          url: /
          expect_status: 200
`)

	root := newTestRootCmd()
	root.AddCommand(newRunCmd())
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"run", path})

	if err := root.Execute(); err != errVUsersFailed {
		t.Fatalf("expected errVUsersFailed, got %v", err)
	}
}
