package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/harrison/taskpilot/internal/models"
)

// ConsoleLogger logs execution progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps.
// Color output is automatically enabled for terminal output (os.Stdout/os.Stderr).
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	progress    *ProgressBar
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive); anything
// else means "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
func isTerminal(w io.Writer) bool {
	if w == nil {
		return false
	}
	if w == os.Stdout || w == os.Stderr {
		// false when NO_COLOR is set or the stream is not a TTY
		return !color.NoColor
	}
	return false
}

func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return allows(cl.logLevel, messageLevel)
}

// LogTrace logs a trace-level message (most verbose).
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning-level message.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
// Format: "[HH:MM:SS] [ERROR] <message>"
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), label, message))
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// paint applies c when color output is enabled.
func (cl *ConsoleLogger) paint(c *color.Color, s string) string {
	if !cl.colorOutput {
		return s
	}
	return c.Sprint(s)
}

// LogPlanStart logs the goal, step count and execution order at INFO level.
// The order itself is shown at DEBUG level.
func (cl *ConsoleLogger) LogPlanStart(plan *models.Plan, order []string) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	cl.mutex.Lock()
	cl.progress = NewProgressBar(len(order), 20, cl.colorOutput)
	cl.mutex.Unlock()

	ts := timestamp()
	goal := plan.Goal
	if goal == "" {
		goal = "(no goal)"
	}
	out := fmt.Sprintf("[%s] Executing plan %s: %d steps\n", ts, cl.paint(color.New(color.Bold), goal), len(order))
	if cl.shouldLog("debug") {
		out += fmt.Sprintf("[%s] Order: %s\n", ts, strings.Join(order, " -> "))
	}
	cl.write(out)
}

// LogStepStart logs a step about to be dispatched at INFO level.
// Format: "[HH:MM:SS] [2/5] Step <id> (<capability>)"
func (cl *ConsoleLogger) LogStepStart(step *models.Step, position, total int) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}
	msg := fmt.Sprintf("[%s] [%d/%d] Step %s (%s)", timestamp(), position, total, step.ID, step.Capability)
	if step.Description != "" && cl.shouldLog("debug") {
		msg += ": " + truncate(step.Description, 80)
	}
	cl.write(msg + "\n")
}

// LogStepRetry logs a failed attempt that will be retried at WARN level.
func (cl *ConsoleLogger) LogStepRetry(step *models.Step, attempt int, err error, delay time.Duration) {
	if cl.writer == nil || !cl.shouldLog("warn") {
		return
	}
	msg := fmt.Sprintf("Step %s attempt %d failed: %v; retrying in %s", step.ID, attempt, err, formatDuration(delay))
	cl.write(fmt.Sprintf("[%s] %s\n", timestamp(), cl.paint(color.New(color.FgYellow), msg)))
}

// LogStepResult logs the final outcome of a step. Successes are INFO,
// skips WARN and failures ERROR. The progress bar follows at INFO level.
func (cl *ConsoleLogger) LogStepResult(result models.StepResult) {
	if cl.writer == nil {
		return
	}

	level := "info"
	var status string
	switch result.Status {
	case models.StepSuccess:
		status = cl.paint(color.New(color.FgGreen), "SUCCESS")
	case models.StepFailed:
		level = "error"
		status = cl.paint(color.New(color.FgRed), "FAILED")
	default:
		level = "warn"
		status = cl.paint(color.New(color.FgYellow), "SKIPPED")
	}

	ts := timestamp()
	var out string
	if cl.shouldLog(level) {
		out = fmt.Sprintf("[%s] Step %s: %s", ts, result.StepID, status)
		if result.Status != models.StepSkipped {
			out += fmt.Sprintf(" (%s, %d %s)", formatDuration(result.Elapsed), result.Attempts, plural(result.Attempts, "attempt"))
		}
		if result.Error != "" {
			out += " - " + result.Error
		}
		out += "\n"
	}

	cl.mutex.Lock()
	pb := cl.progress
	cl.mutex.Unlock()
	if pb != nil && cl.shouldLog("info") {
		pb.Increment()
		out += fmt.Sprintf("[%s] Progress: %s\n", ts, pb.Render())
	}

	if out != "" {
		cl.write(out)
	}
}

// LogSummary logs the execution summary with step counts at INFO level.
func (cl *ConsoleLogger) LogSummary(trace *models.ExecutionTrace) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}

	ts := timestamp()
	counts := trace.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.Bold), "=== Execution Summary ==="))
	fmt.Fprintf(&b, "[%s] Run: %s\n", ts, trace.RunID)
	fmt.Fprintf(&b, "[%s] Status: %s\n", ts, cl.paint(planStatusColor(trace.PlanStatus), string(trace.PlanStatus)))
	fmt.Fprintf(&b, "[%s] Total steps: %d\n", ts, counts.Total)
	fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgGreen), fmt.Sprintf("Successful: %d", counts.Successful)))
	if counts.Failed > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgRed), fmt.Sprintf("Failed: %d", counts.Failed)))
	} else {
		fmt.Fprintf(&b, "[%s] Failed: 0\n", ts)
	}
	fmt.Fprintf(&b, "[%s] Skipped: %d\n", ts, counts.Skipped)
	fmt.Fprintf(&b, "[%s] Duration: %s\n", ts, formatDuration(trace.Elapsed))
	if trace.Cancelled {
		fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgYellow), "Run was cancelled"))
	}

	var failed []models.StepResult
	for _, r := range trace.Steps {
		if r.Status == models.StepFailed {
			failed = append(failed, r)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, "[%s] %s\n", ts, cl.paint(color.New(color.FgRed), "Failed steps:"))
		for _, r := range failed {
			fmt.Fprintf(&b, "[%s]   - %s (%s): %s\n", ts, r.StepID, r.ErrorKind, truncate(r.Error, 120))
		}
	}

	cl.write(b.String())
}

func planStatusColor(status models.PlanStatus) *color.Color {
	switch status {
	case models.PlanCompleted:
		return color.New(color.FgGreen)
	case models.PlanCompletedWithErrors:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// NoOpLogger is a Logger implementation that discards all log messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// LogPlanStart is a no-op implementation.
func (n *NoOpLogger) LogPlanStart(plan *models.Plan, order []string) {}

// LogStepStart is a no-op implementation.
func (n *NoOpLogger) LogStepStart(step *models.Step, position, total int) {}

// LogStepRetry is a no-op implementation.
func (n *NoOpLogger) LogStepRetry(step *models.Step, attempt int, err error, delay time.Duration) {}

// LogStepResult is a no-op implementation.
func (n *NoOpLogger) LogStepResult(result models.StepResult) {}

// LogSummary is a no-op implementation.
func (n *NoOpLogger) LogSummary(trace *models.ExecutionTrace) {}
