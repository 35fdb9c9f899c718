package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/internal/presentation/tui"
	"github.com/aretw0/relay/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Run a workflow and print its execution record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		rawInput, _ := cmd.Flags().GetString("input")
		asJSON, _ := cmd.Flags().GetBool("json")

		input, err := cli.ParseInput(rawInput)
		if err != nil {
			return err
		}

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		rec, err := r.Execute(cmd.Context(), args[0], user, input)
		if err != nil {
			return err
		}
		if err := printRecord(cmd, rec, asJSON); err != nil {
			return err
		}
		if rec.Status == domain.StatusError {
			return fmt.Errorf("execution %s failed", rec.ID)
		}
		return nil
	},
}

// printRecord renders rec as Markdown on a terminal and as JSON otherwise.
func printRecord(cmd *cobra.Command, rec *domain.ExecutionRecord, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON || !tui.IsTerminal(os.Stdout) {
		return cli.PrintJSON(out, rec)
	}
	rendered, err := tui.NewRenderer()(tui.RecordMarkdown(rec))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("user", "u", "", "User running the workflow (must own it)")
	runCmd.Flags().StringP("input", "i", "", "Workflow input as a JSON object")
	runCmd.Flags().Bool("json", false, "Print the record as JSON")
	_ = runCmd.MarkFlagRequired("user")
}
