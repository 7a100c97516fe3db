package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samirrijal/loadgen/internal/core/usecases"
	"github.com/samirrijal/loadgen/internal/pkg/randutil"
)

func newHooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "List registered hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := usecases.DefaultHooks(randutil.New(0)).Names()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string][]string{"hooks": names})
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
