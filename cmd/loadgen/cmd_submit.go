package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/pkg/config"
	"github.com/samirrijal/loadgen/internal/workflows"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <script.yaml>",
		Short: "Run a test script on a Temporal worker",
		Long: `Start a load test workflow for the script on the configured Temporal
task queue. The script is checked locally before it is submitted.

Examples:
  loadgen submit loadtest.yaml
  loadgen submit --wait --name nightly loadtest.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("script %s: %w", args[0], err)
			}
			if _, err := config.ParseScript(data); err != nil {
				return fmt.Errorf("script %s: %w", args[0], err)
			}

			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				name = args[0]
			}

			c, err := client.Dial(client.Options{
				HostPort:  cfg.Temporal.HostPort,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer c.Close()

			we, err := c.ExecuteWorkflow(cmd.Context(), client.StartWorkflowOptions{
				ID:        "loadtest-" + uuid.NewString(),
				TaskQueue: cfg.Temporal.TaskQueue,
			}, workflows.LoadTestWorkflow, workflows.LoadTestInput{Name: name, Script: string(data)})
			if err != nil {
				return fmt.Errorf("start workflow: %w", err)
			}

			out := cmd.OutOrStdout()
			asJSON, _ := cmd.Flags().GetBool("json")
			if wait, _ := cmd.Flags().GetBool("wait"); !wait {
				if asJSON {
					return json.NewEncoder(out).Encode(map[string]string{
						"workflow_id": we.GetID(),
						"run_id":      we.GetRunID(),
					})
				}
				fmt.Fprintf(out, "started workflow %s\n", we.GetID())
				return nil
			}

			var summary domain.RunSummary
			if err := we.Get(cmd.Context(), &summary); err != nil {
				return fmt.Errorf("workflow %s: %w", we.GetID(), err)
			}
			return printRun(cmd, &domain.Run{
				ID:         summary.RunID,
				Name:       name,
				Status:     domain.RunStatusFinished,
				StartedAt:  summary.StartedAt,
				FinishedAt: &summary.FinishedAt,
				Summary:    &summary,
			})
		},
	}

	cmd.Flags().String("name", "", "Run name (defaults to the script path)")
	cmd.Flags().Bool("wait", false, "Wait for the workflow and print the summary")
	return cmd
}
