package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/aretw0/relay/pkg/domain"
)

var executionsCmd = &cobra.Command{
	Use:     "executions",
	Short:   "Inspect recorded executions",
}

var executionsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List executions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflow, _ := cmd.Flags().GetString("workflow")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		switch domain.ExecutionStatus(status) {
		case "", domain.StatusRunning, domain.StatusSuccess, domain.StatusError:
		default:
			return domain.ValidationError("unknown status %q", status)
		}

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		recs, err := r.ListExecutions(cmd.Context(), domain.ExecutionFilter{
			WorkflowID: workflow,
			Status:     domain.ExecutionStatus(status),
			Limit:      limit,
		})
		if err != nil {
			return err
		}

		profile := termenv.Ascii
		if tui.IsTerminal(os.Stdout) {
			profile = termenv.ColorProfile()
		}
		return tui.PrintExecutions(cmd.OutOrStdout(), profile, recs)
	},
}

var executionsInspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Show one execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		withGraph, _ := cmd.Flags().GetBool("graph")

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		rec, err := r.Execution(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NotFoundError("execution %s not found", args[0])
			}
			return err
		}

		if !withGraph {
			return printRecord(cmd, rec, asJSON)
		}
		wf, err := r.Workflows.Find(cmd.Context(), rec.WorkflowID, "")
		if err != nil {
			return fmt.Errorf("failed to load workflow %s: %w", rec.WorkflowID, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(wf, graph.OverlayFor(wf, rec)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(executionsCmd)
	executionsCmd.AddCommand(executionsListCmd, executionsInspectCmd)

	executionsListCmd.Flags().StringP("workflow", "w", "", "Only executions of this workflow")
	executionsListCmd.Flags().StringP("status", "s", "", "Only executions in this status (running, success, error)")
	executionsListCmd.Flags().IntP("limit", "n", 20, "Maximum number of executions")

	executionsInspectCmd.Flags().Bool("json", false, "Print the record as JSON")
	executionsInspectCmd.Flags().Bool("graph", false, "Print the workflow as a Mermaid graph with the execution overlaid")
}
