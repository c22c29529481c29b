package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/taskpilot/internal/models"
)

// DefaultLogDir is where run logs go when no directory is configured.
const DefaultLogDir = ".taskpilot/logs"

// FileLogger logs execution events to files under a log directory.
// It creates a timestamped per-run log file, one detailed log per step in the
// steps/ subdirectory, and maintains a latest.log symlink pointing to the
// most recent run.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	stepsDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger writing to DefaultLogDir at info level.
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(DefaultLogDir, "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log
// directory and log level. The directory is created if missing.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	stepsDir := filepath.Join(logDir, "steps")
	if err := os.MkdirAll(stepsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create steps directory: %w", err)
	}

	// run-YYYYMMDD-HHMMSS.log; a numeric suffix keeps runs in the same second apart
	stamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", stamp))
	for i := 1; fileExists(runFile); i++ {
		runFile = filepath.Join(logDir, fmt.Sprintf("run-%s-%d.log", stamp, i))
	}

	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	logger := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		stepsDir: stepsDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	logger.writeRunLog("=== Taskpilot Run Log ===\n")
	logger.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return logger, nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// RunLogPath returns the path of this run's log file.
func (fl *FileLogger) RunLogPath() string {
	return fl.runFile
}

func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return allows(fl.logLevel, messageLevel)
}

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) {
	fl.logWithLevel("INFO", message)
}

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) {
	fl.logWithLevel("ERROR", message)
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogPlanStart records the goal, source file and execution order.
func (fl *FileLogger) LogPlanStart(plan *models.Plan, order []string) {
	if !fl.shouldLog("info") {
		return
	}
	ts := timestamp()
	msg := fmt.Sprintf("[%s] Plan: %s\n", ts, plan.Goal)
	if plan.FilePath != "" {
		msg += fmt.Sprintf("[%s] Source: %s\n", ts, plan.FilePath)
	}
	msg += fmt.Sprintf("[%s] Order (%d %s): %s\n", ts, len(order), plural(len(order), "step"), strings.Join(order, ", "))
	fl.writeRunLog(msg)
}

// LogStepStart records a step about to be dispatched.
func (fl *FileLogger) LogStepStart(step *models.Step, position, total int) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%d/%d] Starting %s (%s)\n", timestamp(), position, total, step.ID, step.Capability))
}

// LogStepRetry records a failed attempt at WARN level.
func (fl *FileLogger) LogStepRetry(step *models.Step, attempt int, err error, delay time.Duration) {
	if !fl.shouldLog("warn") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [WARN] %s attempt %d failed: %v (retry in %.1fs)\n",
		timestamp(), step.ID, attempt, err, delay.Seconds()))
}

// LogStepResult writes a one-line outcome to the run log and the full
// result, output included, to steps/step-<id>.log.
func (fl *FileLogger) LogStepResult(result models.StepResult) {
	if fl.shouldLog("info") {
		line := fmt.Sprintf("[%s] %s: %s (attempts: %d, %.3fs)", timestamp(), result.StepID, strings.ToUpper(string(result.Status)), result.Attempts, result.Elapsed.Seconds())
		if result.Error != "" {
			line += fmt.Sprintf(" [%s] %s", result.ErrorKind, result.Error)
		}
		fl.writeRunLog(line + "\n")
	}

	if err := fl.writeStepLog(result); err != nil {
		fl.writeRunLog(fmt.Sprintf("[%s] [ERROR] %v\n", timestamp(), err))
	}
}

func (fl *FileLogger) writeStepLog(result models.StepResult) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.stepsDir, fmt.Sprintf("step-%s.log", sanitizeFileName(result.StepID)))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create step log file: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Step %s: %s ===\n", result.StepID, result.Capability)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Attempts: %d\n", result.Attempts)
	fmt.Fprintf(&b, "Duration: %.3fs\n\n", result.Elapsed.Seconds())

	if len(result.SkippedBecause) > 0 {
		fmt.Fprintf(&b, "Skipped because: %s\n\n", strings.Join(result.SkippedBecause, ", "))
	}
	if result.Output != nil {
		out, err := json.MarshalIndent(result.Output, "", "  ")
		if err != nil {
			out = []byte(fmt.Sprintf("%v", result.Output))
		}
		fmt.Fprintf(&b, "Output:\n%s\n\n", out)
	}
	if result.Error != "" {
		fmt.Fprintf(&b, "Error (%s):\n%s\n\n", result.ErrorKind, result.Error)
	}
	fmt.Fprintf(&b, "Completed at: %s\n", time.Now().Format(time.RFC3339))

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write step log: %w", err)
	}
	return nil
}

// sanitizeFileName replaces path separators so a step id stays one file name.
func sanitizeFileName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", string(os.PathSeparator), "_").Replace(id)
}

// LogSummary records the final statistics at INFO level.
func (fl *FileLogger) LogSummary(trace *models.ExecutionTrace) {
	if !fl.shouldLog("info") {
		return
	}

	ts := timestamp()
	counts := trace.Counts()
	message := fmt.Sprintf(
		"\n[%s] === EXECUTION SUMMARY ===\n"+
			"[%s] Run:          %s\n"+
			"[%s] Total steps:  %d\n"+
			"[%s] Successful:   %d\n"+
			"[%s] Failed:       %d\n"+
			"[%s] Skipped:      %d\n"+
			"[%s] Total time:   %.1fs\n"+
			"[%s] Status:       %s\n"+
			"[%s] Cancelled:    %t\n"+
			"[%s] Completed at: %s\n",
		ts,
		ts, trace.RunID,
		ts, counts.Total,
		ts, counts.Successful,
		ts, counts.Failed,
		ts, counts.Skipped,
		ts, trace.Elapsed.Seconds(),
		ts, trace.PlanStatus,
		ts, trace.Cancelled,
		ts, time.Now().Format(time.RFC3339),
	)
	fl.writeRunLog(message)
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
