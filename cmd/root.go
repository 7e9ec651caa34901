package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tipbot",
	Short: "Lightning tip bot for chat rooms",
	Long: "tipbot watches chat rooms for commands like !tip, !send and !invoice and\n" +
		"executes them against a custodial LNbits wallet per chat identity.",
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
