package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/executor"
	"github.com/harrison/taskpilot/internal/logger"
	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/parser"
	"github.com/harrison/taskpilot/internal/registry"
	"github.com/harrison/taskpilot/internal/telemetry"
	"github.com/harrison/taskpilot/internal/tools"
	"github.com/harrison/taskpilot/internal/tracefile"
)

// Output modes for the run command
const (
	outputAuto = "auto"
	outputText = "text"
	outputJSON = "json"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan",
		Long: `Execute a plan document (JSON, YAML or Markdown).

Steps run one at a time in dependency order. Transient failures are
retried with exponential backoff; dependents of a failed step are skipped.
The run ends with an execution trace recording every step's outcome.

Configuration is loaded from .taskpilot/config.yaml if present, then
overridden by environment variables (a .env file is read first) and
finally by CLI flags.

Output defaults to a console summary on a terminal and the JSON trace
when stdout is piped. Use --output to force either.

Examples:
  taskpilot run plan.yaml
  taskpilot run --dry-run plan.md           # Validate and print the order
  taskpilot run --timeout 2m plan.json      # Limit the whole run
  taskpilot run --max-attempts 5 plan.yaml  # Retry transient failures more
  taskpilot run --trace-out traces/ plan.yaml
  taskpilot run --output json plan.yaml | jq .steps`,
		Args: cobra.ExactArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .taskpilot/config.yaml)")
	cmd.Flags().String("env-file", ".env", "Path to a .env file with API keys")
	cmd.Flags().String("format", "", "Plan format: json, yaml or markdown (default: from file extension)")
	cmd.Flags().Bool("dry-run", false, "Validate the plan and print the execution order without running it")
	cmd.Flags().String("timeout", "", "Maximum run time for the whole plan (e.g., 30s, 5m)")
	cmd.Flags().Int("max-attempts", 0, "Maximum attempts per step for transient failures")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Directory for run logs")
	cmd.Flags().Bool("verbose", false, "Show detailed execution information (same as --log-level debug)")
	cmd.Flags().String("trace-out", "", "Write the execution trace to this file, or to <dir>/<run-id>.json if it is a directory")
	cmd.Flags().String("output", outputAuto, "Output mode: auto, text or json")

	return cmd
}

// loadConfig resolves configuration from file, environment and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	envFile, _ := cmd.Flags().GetString("env-file")
	lookup, err := config.EnvLookup(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	return cfg, nil
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logLevelFlag, _ := cmd.Flags().GetString("log-level")
	logDirFlag, _ := cmd.Flags().GetString("log-dir")
	timeoutStr, _ := cmd.Flags().GetString("timeout")
	maxAttemptsFlag, _ := cmd.Flags().GetInt("max-attempts")
	verbose, _ := cmd.Flags().GetBool("verbose")

	// Build flag pointers for merge (only non-default values)
	var logLevelPtr *string
	if cmd.Flags().Changed("log-level") {
		logLevelPtr = &logLevelFlag
	} else if verbose {
		debug := "debug"
		logLevelPtr = &debug
	}

	var logDirPtr *string
	if cmd.Flags().Changed("log-dir") {
		logDirPtr = &logDirFlag
	}

	var timeoutPtr *time.Duration
	if cmd.Flags().Changed("timeout") {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid timeout format %q: %w", timeoutStr, err)
		}
		timeoutPtr = &timeout
	}

	var maxAttemptsPtr *int
	if cmd.Flags().Changed("max-attempts") {
		maxAttemptsPtr = &maxAttemptsFlag
	}

	// Merge CLI flags with config (flags take precedence)
	cfg.MergeWithFlags(logLevelPtr, logDirPtr, timeoutPtr, maxAttemptsPtr)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	outputMode, _ := cmd.Flags().GetString("output")
	jsonOutput, err := wantJSON(outputMode, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	formatName, _ := cmd.Flags().GetString("format")
	plan, err := loadPlan(args[0], formatName)
	if err != nil {
		return err
	}

	reg := registry.New()
	if err := tools.RegisterAll(reg, tools.Options{APIs: cfg.APIs}); err != nil {
		return fmt.Errorf("failed to register capabilities: %w", err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if dryRun {
		return printDryRun(cmd.OutOrStdout(), plan, reg)
	}

	// Progress goes to stderr when stdout carries the JSON trace
	progressOut := cmd.OutOrStdout()
	if jsonOutput {
		progressOut = cmd.ErrOrStderr()
	}
	consoleLog := logger.NewConsoleLogger(progressOut, cfg.LogLevel)

	fileLog, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()

	multiLog := &multiLogger{
		loggers: []executor.Logger{consoleLog, fileLog},
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, cfg.Telemetry, Version)
	if err != nil {
		return fmt.Errorf("failed to initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: telemetry shutdown: %v\n", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(provider.Meter)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	engine := executor.NewEngine(reg, cfg.EngineConfig(),
		executor.WithLogger(multiLog),
		executor.WithTracer(provider.Tracer),
		executor.WithMetrics(metrics),
	)

	trace, runErr := engine.Execute(ctx, plan)
	if trace == nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}

	traceOut, _ := cmd.Flags().GetString("trace-out")
	if traceOut != "" {
		path := traceOut
		if info, err := os.Stat(traceOut); err == nil && info.IsDir() {
			path = tracefile.PathFor(traceOut, trace.RunID)
		}
		// Use a fresh context so an interrupted run still leaves its trace behind
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := tracefile.Write(writeCtx, path, trace)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
		fmt.Fprintf(progressOut, "Trace written to: %s\n", path)
	}

	if jsonOutput {
		if err := writeTraceJSON(cmd.OutOrStdout(), trace); err != nil {
			return err
		}
	}

	return runOutcome(progressOut, trace, runErr, cfg.LogDir)
}

// wantJSON decides whether the trace is printed as JSON. In auto mode JSON
// is used when out is a file that is not a terminal (piped or redirected).
func wantJSON(mode string, out io.Writer) (bool, error) {
	switch mode {
	case outputJSON:
		return true, nil
	case outputText:
		return false, nil
	case outputAuto, "":
		f, ok := out.(*os.File)
		if !ok {
			return false, nil
		}
		return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()), nil
	default:
		return false, fmt.Errorf("invalid output mode %q, must be one of: auto, text, json", mode)
	}
}

func loadPlan(path, formatName string) (*models.Plan, error) {
	var plan *models.Plan
	var err error
	if formatName != "" {
		format := parser.ParseFormat(formatName)
		if format == parser.FormatUnknown {
			return nil, fmt.Errorf("invalid plan format %q, must be one of: json, yaml, markdown", formatName)
		}
		plan, err = parser.ParseFileAs(path, format)
	} else {
		plan, err = parser.ParseFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan file: %w", err)
	}
	return plan, nil
}

func printDryRun(w io.Writer, plan *models.Plan, reg *registry.Registry) error {
	order, err := executor.ResolveOrder(plan)
	if err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	fmt.Fprintf(w, "Plan Summary:\n")
	fmt.Fprintf(w, "  Goal: %s\n", plan.Goal)
	fmt.Fprintf(w, "  Total steps: %d\n", len(plan.Steps))
	fmt.Fprintf(w, "\nDry-run mode: Plan is valid and ready for execution.\n")
	fmt.Fprintf(w, "\nExecution order:\n")
	for i, id := range order {
		step, _ := plan.Step(id)
		marker := ""
		if !reg.Lookup(step.Capability) {
			marker = " [unknown capability]"
		}
		fmt.Fprintf(w, "  %d. %s (%s)%s\n", i+1, step.ID, step.Capability, marker)
	}
	return nil
}

func writeTraceJSON(w io.Writer, trace *models.ExecutionTrace) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(trace); err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	return nil
}

// runOutcome turns the final plan status into the command's exit error.
func runOutcome(w io.Writer, trace *models.ExecutionTrace, runErr error, logDir string) error {
	counts := trace.Counts()
	switch trace.PlanStatus {
	case models.PlanAborted:
		if runErr == nil {
			runErr = errors.New("plan aborted")
		}
		return fmt.Errorf("plan aborted before execution: %w", runErr)
	case models.PlanCompletedWithErrors:
		if trace.Cancelled {
			fmt.Fprintf(w, "\nExecution cancelled after %d of %d step(s).\n", counts.Successful+counts.Failed, counts.Total)
			return fmt.Errorf("execution cancelled: %d step(s) skipped", counts.Skipped)
		}
		fmt.Fprintf(w, "\nExecution completed with %d failed and %d skipped step(s).\n", counts.Failed, counts.Skipped)
		return fmt.Errorf("%d step(s) failed, %d skipped", counts.Failed, counts.Skipped)
	}

	fmt.Fprintf(w, "\nExecution completed successfully!\n")
	fmt.Fprintf(w, "Logs written to: %s\n", logDir)
	return nil
}

// multiLogger implements executor.Logger by delegating to multiple loggers
type multiLogger struct {
	loggers []executor.Logger
}

// LogPlanStart forwards to all loggers
func (ml *multiLogger) LogPlanStart(plan *models.Plan, order []string) {
	for _, l := range ml.loggers {
		l.LogPlanStart(plan, order)
	}
}

// LogStepStart forwards to all loggers
func (ml *multiLogger) LogStepStart(step *models.Step, position, total int) {
	for _, l := range ml.loggers {
		l.LogStepStart(step, position, total)
	}
}

// LogStepRetry forwards to all loggers
func (ml *multiLogger) LogStepRetry(step *models.Step, attempt int, err error, delay time.Duration) {
	for _, l := range ml.loggers {
		l.LogStepRetry(step, attempt, err, delay)
	}
}

// LogStepResult forwards to all loggers
func (ml *multiLogger) LogStepResult(result models.StepResult) {
	for _, l := range ml.loggers {
		l.LogStepResult(result)
	}
}

// LogSummary forwards to all loggers
func (ml *multiLogger) LogSummary(trace *models.ExecutionTrace) {
	for _, l := range ml.loggers {
		l.LogSummary(trace)
	}
}
