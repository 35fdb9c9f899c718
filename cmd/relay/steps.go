package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/relay/internal/cli"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/steps"
)

const tokenEnv = "RELAY_SANDBOX_TOKEN"

var errStepFailed = errors.New("step failed")

func sandboxToken(cmd *cobra.Command) string {
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		return token
	}
	return os.Getenv(tokenEnv)
}

var execCmd = &cobra.Command{
	Use:   "exec <command>...",
	Short: "Run one shell command in a fresh sandbox session",
	Long: `Runs the command in a new sandbox session and prints the step result as JSON.
Arguments are joined with spaces; quote them to keep shell operators intact.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sandboxType, _ := cmd.Flags().GetString("sandbox")
		token := sandboxToken(cmd)

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		res := r.RunCommand(cmd.Context(), steps.CommandInput{
			Command:     strings.Join(args, " "),
			SandboxType: sandboxType,
			Token:       token,
		})
		return printResult(cmd, res)
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent <prompt>",
	Short: "Let the configured model work on a task inside a sandbox session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		maxSteps, _ := cmd.Flags().GetInt("max-steps")
		instructions, _ := cmd.Flags().GetString("instructions")
		sandboxType, _ := cmd.Flags().GetString("sandbox")
		token := sandboxToken(cmd)

		r, _, _, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		res := r.RunAgent(cmd.Context(), steps.AgentInput{
			Prompt:       strings.Join(args, " "),
			Instructions: instructions,
			Model:        model,
			MaxSteps:     maxSteps,
			SandboxType:  sandboxType,
			Token:        token,
		})
		return printResult(cmd, res)
	},
}

func printResult(cmd *cobra.Command, res domain.Result) error {
	if err := cli.PrintJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return errStepFailed
	}
	return nil
}

func sandboxFlags(cmd *cobra.Command) {
	cmd.Flags().String("sandbox", "local", "Sandbox kind: local or remote")
	cmd.Flags().String("token", "", "Bearer token for remote sandboxes (default $"+tokenEnv+")")
}

func init() {
	rootCmd.AddCommand(execCmd, agentCmd)

	sandboxFlags(execCmd)
	sandboxFlags(agentCmd)
	agentCmd.Flags().String("model", "", "Model id (default model.id)")
	agentCmd.Flags().Int("max-steps", 0, "Step ceiling, 1 to 50 (default 10)")
	agentCmd.Flags().String("instructions", "", "System instructions (default model.instructions)")
}
