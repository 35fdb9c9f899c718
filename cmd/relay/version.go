package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/internal/presentation/tui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of relay",
	Run: func(cmd *cobra.Command, args []string) {
		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(cmd.OutOrStdout(), relay.Version)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "relay version %s\n", relay.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
