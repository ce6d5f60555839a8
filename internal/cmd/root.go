// Package cmd implements the okb scriptable CLI: a thin cobra command tree
// over the Orchestrator, one process invocation per command (spec §6).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOutput  bool
	projectName string
	configPath  string
	exitStatus  int
)

var rootCmd = &cobra.Command{
	Use:           "okb",
	Short:         "Per-task git worktrees, multiplexer sessions, and coding agents, orchestrated from a kanban board",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectName, "project", "", "project name (required)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit a JSON envelope instead of a table")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default: $XDG_CONFIG_HOME/opencode-kanban/config.toml)")

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(categoryCmd)
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitStatus == 0 {
			exitStatus = 2
		}
	}
	return exitStatus
}
