package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/pkg/randutil"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script.yaml>...",
		Short: "Check scripts without running them",
		Long: `Parse each script and check that every hook it names is registered.

Exits non-zero when any script is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hooks := usecases.DefaultHooks(randutil.New(0))
			asJSON, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			type result struct {
				Path  string `json:"path"`
				Valid bool   `json:"valid"`
				Error string `json:"error,omitempty"`
			}
			results := make([]result, 0, len(args))
			invalid := 0
			for _, path := range args {
				r := result{Path: path, Valid: true}
				script, err := config.LoadScript(path)
				if err == nil {
					err = hooks.Check(script)
				}
				if err != nil {
					r.Valid = false
					r.Error = err.Error()
					invalid++
				}
				results = append(results, r)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Valid {
						fmt.Fprintf(out, "ok      %s\n", r.Path)
					} else {
						fmt.Fprintf(out, "invalid %s: %s\n", r.Path, r.Error)
					}
				}
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d scripts invalid", invalid, len(args))
			}
			return nil
		},
	}
}
