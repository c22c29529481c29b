package executor

import (
	"fmt"

	"github.com/harrison/taskpilot/internal/models"
)

// ExecutionContext holds the results recorded so far in one run. Each step
// id is written at most once. It belongs to a single run and is not safe
// for concurrent use.
type ExecutionContext struct {
	results map[string]models.StepResult
	order   []string
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{results: make(map[string]models.StepResult)}
}

// Record stores the result for result.StepID. A second write for the same id
// fails with ErrAlreadyRecorded and leaves the first result in place.
func (c *ExecutionContext) Record(result models.StepResult) error {
	if _, exists := c.results[result.StepID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRecorded, result.StepID)
	}
	c.results[result.StepID] = result
	c.order = append(c.order, result.StepID)
	return nil
}

// Get returns the recorded result for a step.
func (c *ExecutionContext) Get(stepID string) (models.StepResult, bool) {
	r, ok := c.results[stepID]
	return r, ok
}

// Output returns the payload of a step that finished with success.
func (c *ExecutionContext) Output(stepID string) (any, bool) {
	r, ok := c.results[stepID]
	if !ok || r.Status != models.StepSuccess {
		return nil, false
	}
	return r.Output, true
}

// Done reports which steps have a recorded result, whatever their status.
func (c *ExecutionContext) Done() map[string]bool {
	done := make(map[string]bool, len(c.results))
	for id := range c.results {
		done[id] = true
	}
	return done
}

// Results returns the recorded results in recording order.
func (c *ExecutionContext) Results() []models.StepResult {
	out := make([]models.StepResult, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.results[id])
	}
	return out
}

// Len returns the number of recorded results.
func (c *ExecutionContext) Len() int {
	return len(c.results)
}
