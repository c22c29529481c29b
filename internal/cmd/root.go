package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for taskpilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskpilot",
		Short: "Plan execution engine for tool-calling workflows",
		Long: `Taskpilot executes structured plans produced by a planner.

A plan is an ordered list of steps, each invoking a named capability
(GitHub, weather, news or local compute helpers). Steps may depend on
each other and reference earlier outputs as parameters. Taskpilot orders
the steps, resolves references, retries transient failures and records
every outcome in an execution trace.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewCapabilitiesCommand())
	cmd.AddCommand(NewInspectCommand())

	return cmd
}
