package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrison/taskpilot/internal/models"
	"github.com/harrison/taskpilot/internal/tracefile"
)

func writeTestTrace(t *testing.T) string {
	t.Helper()
	trace := &models.ExecutionTrace{
		RunID:      "run-42",
		Goal:       "Check the weather",
		PlanStatus: models.PlanCompletedWithErrors,
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Elapsed:    1500 * time.Millisecond,
		Steps: []models.StepResult{
			{StepID: "weather", Capability: "get_current_weather", Status: models.StepFailed,
				Error: "401 unauthorized", ErrorKind: "permanent", Attempts: 1, Elapsed: 200 * time.Millisecond},
			{StepID: "report", Capability: "format_text", Status: models.StepSkipped,
				Error: "upstream dependency failed: [weather]", ErrorKind: "dependency_failed", SkippedBecause: []string{"weather"}},
		},
	}
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := tracefile.Write(context.Background(), path, trace); err != nil {
		t.Fatalf("failed to write trace: %v", err)
	}
	return path
}

func TestInspectTrace_Text(t *testing.T) {
	path := writeTestTrace(t)
	buf := new(bytes.Buffer)

	if err := inspectTrace(buf, path, false); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Goal: Check the weather",
		"Step weather: FAILED",
		"Step report: SKIPPED - upstream dependency failed: [weather]",
		"Run: run-42",
		"Status: completed_with_errors",
		"Skipped: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInspectTrace_JSON(t *testing.T) {
	path := writeTestTrace(t)
	buf := new(bytes.Buffer)

	if err := inspectTrace(buf, path, true); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"run_id": "run-42"`) {
		t.Errorf("unexpected JSON output:\n%s", buf.String())
	}
}

func TestInspectCommand_MissingFile(t *testing.T) {
	cmd := NewRootCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"inspect", filepath.Join(t.TempDir(), "absent.json")})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to read trace file") {
		t.Errorf("expected read error, got %v", err)
	}
}
