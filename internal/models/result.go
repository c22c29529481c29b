package models

import (
	"encoding/json"
	"sort"
	"time"
)

// StepStatus is the terminal state of a step within one run.
type StepStatus string

// Step status constants
const (
	StepSuccess StepStatus = "success" // Action returned a payload
	StepFailed  StepStatus = "failed"  // Action or parameter resolution failed
	StepSkipped StepStatus = "skipped" // Not attempted because of an upstream failure or cancellation
)

// PlanStatus summarizes a whole run.
type PlanStatus string

// Plan status constants
const (
	PlanCompleted           PlanStatus = "completed"             // Every non-optional step succeeded
	PlanCompletedWithErrors PlanStatus = "completed_with_errors" // At least one non-optional step did not succeed
	PlanAborted             PlanStatus = "aborted"               // Plan could not be ordered; nothing ran
)

// StepResult records the outcome of one step. Output is set only on success,
// Error only on failure or skip.
type StepResult struct {
	StepID         string
	Capability     string
	Status         StepStatus
	Output         any
	Error          string
	ErrorKind      string
	Attempts       int
	Elapsed        time.Duration
	SkippedBecause []string
}

type stepResultJSON struct {
	ID             string     `json:"id"`
	Capability     string     `json:"capability,omitempty"`
	Status         StepStatus `json:"status"`
	Output         any        `json:"output,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Attempts       int        `json:"attempts"`
	ElapsedMS      int64      `json:"elapsed_ms"`
	SkippedBecause []string   `json:"skipped_because,omitempty"`
}

// MarshalJSON renders the result in trace form with elapsed time in milliseconds.
func (r StepResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(stepResultJSON{
		ID:             r.StepID,
		Capability:     r.Capability,
		Status:         r.Status,
		Output:         r.Output,
		Error:          r.Error,
		ErrorKind:      r.ErrorKind,
		Attempts:       r.Attempts,
		ElapsedMS:      r.Elapsed.Milliseconds(),
		SkippedBecause: r.SkippedBecause,
	})
}

// UnmarshalJSON reads the trace form written by MarshalJSON.
func (r *StepResult) UnmarshalJSON(data []byte) error {
	var raw stepResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = StepResult{
		StepID:         raw.ID,
		Capability:     raw.Capability,
		Status:         raw.Status,
		Output:         raw.Output,
		Error:          raw.Error,
		ErrorKind:      raw.ErrorKind,
		Attempts:       raw.Attempts,
		Elapsed:        time.Duration(raw.ElapsedMS) * time.Millisecond,
		SkippedBecause: raw.SkippedBecause,
	}
	return nil
}

// ExecutionTrace is the ordered record of one plan run, handed to the verifier.
type ExecutionTrace struct {
	RunID      string
	Goal       string
	PlanStatus PlanStatus
	Steps      []StepResult // In execution order
	StartedAt  time.Time
	Elapsed    time.Duration
	Cancelled  bool
}

type traceJSON struct {
	RunID      string       `json:"run_id"`
	Goal       string       `json:"goal,omitempty"`
	PlanStatus PlanStatus   `json:"plan_status"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	Cancelled  bool         `json:"cancelled,omitempty"`
}

// MarshalJSON renders the trace. Steps is always an array, never null.
func (t ExecutionTrace) MarshalJSON() ([]byte, error) {
	steps := t.Steps
	if steps == nil {
		steps = []StepResult{}
	}
	return json.Marshal(traceJSON{
		RunID:      t.RunID,
		Goal:       t.Goal,
		PlanStatus: t.PlanStatus,
		Steps:      steps,
		StartedAt:  t.StartedAt,
		ElapsedMS:  t.Elapsed.Milliseconds(),
		Cancelled:  t.Cancelled,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (t *ExecutionTrace) UnmarshalJSON(data []byte) error {
	var raw traceJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = ExecutionTrace{
		RunID:      raw.RunID,
		Goal:       raw.Goal,
		PlanStatus: raw.PlanStatus,
		Steps:      raw.Steps,
		StartedAt:  raw.StartedAt,
		Elapsed:    time.Duration(raw.ElapsedMS) * time.Millisecond,
		Cancelled:  raw.Cancelled,
	}
	return nil
}

// Result returns the recorded result for a step id.
func (t *ExecutionTrace) Result(id string) (StepResult, bool) {
	for _, r := range t.Steps {
		if r.StepID == id {
			return r, true
		}
	}
	return StepResult{}, false
}

// Order returns the step ids in the order they were processed.
func (t *ExecutionTrace) Order() []string {
	ids := make([]string, len(t.Steps))
	for i, r := range t.Steps {
		ids[i] = r.StepID
	}
	return ids
}

// TraceCounts tallies step outcomes.
type TraceCounts struct {
	Total      int
	Successful int
	Failed     int
	Skipped    int
}

// Counts tallies the step results by status.
func (t *ExecutionTrace) Counts() TraceCounts {
	c := TraceCounts{Total: len(t.Steps)}
	for _, r := range t.Steps {
		switch r.Status {
		case StepSuccess:
			c.Successful++
		case StepFailed:
			c.Failed++
		case StepSkipped:
			c.Skipped++
		}
	}
	return c
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
