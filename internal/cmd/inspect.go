package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/taskpilot/internal/logger"
	"github.com/harrison/taskpilot/internal/tracefile"
)

// NewInspectCommand creates and returns the inspect subcommand
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <trace-file>",
		Short: "Summarize a trace written by run --trace-out",
		Long: `Read an execution trace saved with 'taskpilot run --trace-out' and
print each step's outcome followed by the execution summary.

Use --json to print the stored trace unchanged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return inspectTrace(cmd.OutOrStdout(), args[0], asJSON)
		},
		SilenceUsage: true,
	}

	cmd.Flags().Bool("json", false, "Print the trace as JSON")

	return cmd
}

// inspectTrace replays a stored trace through the console logger.
func inspectTrace(w io.Writer, path string, asJSON bool) error {
	trace, err := tracefile.Read(path)
	if err != nil {
		return err
	}
	if asJSON {
		return writeTraceJSON(w, trace)
	}

	if trace.Goal != "" {
		fmt.Fprintf(w, "Goal: %s\n", trace.Goal)
	}
	fmt.Fprintf(w, "Started: %s\n", trace.StartedAt.Format("2006-01-02 15:04:05 MST"))

	console := logger.NewConsoleLogger(w, "info")
	for _, result := range trace.Steps {
		console.LogStepResult(result)
	}
	console.LogSummary(trace)
	return nil
}
