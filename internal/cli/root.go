// Package cli implements the focus command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/focus/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "focus",
	Short: "focus: daily tasks, focus sessions and XP",
	Long: `focus runs the task ledger, focus session timer and reward engine
behind a small HTTP API, with a daily sweep that pays streak and weekly
goal rewards.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	daemon.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
