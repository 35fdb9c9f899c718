package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/internal/validator"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "Inspect the workflow definitions in workflows.dir",
}

var workflowsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List workflows",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		wfs, err := r.Workflows.List(cmd.Context(), owner)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tOWNER\tNODES\tNAME")
		for _, wf := range wfs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", wf.ID, wf.OwnerID, len(wf.Nodes), wf.Name)
		}
		return tw.Flush()
	},
}

var workflowsGraphCmd = &cobra.Command{
	Use:   "graph <id>",
	Short: "Export the workflow as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		wf, err := r.Workflows.Find(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(wf, nil))
		return nil
	},
}

var workflowsValidateCmd = &cobra.Command{
	Use:   "validate <id>",
	Short: "Check a workflow's nodes and integrations without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		wf, err := r.Workflows.Find(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}
		v := validator.New(validator.WithIntegrations(cfg.Integrations))
		if err := v.Validate(cmd.Context(), wf.Nodes, wf.OwnerID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return fmt.Errorf("workflow %s is invalid", wf.ID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s is valid (%d nodes)\n", wf.ID, len(wf.Nodes))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
	workflowsCmd.AddCommand(workflowsListCmd, workflowsGraphCmd, workflowsValidateCmd)

	workflowsListCmd.Flags().String("owner", "", "Only workflows owned by this user")
}
