package executor

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/taskpilot/internal/models"
)

func step(id string, deps ...string) models.Step {
	return models.Step{ID: id, Capability: "noop", DependsOn: deps}
}

func planOf(steps ...models.Step) *models.Plan {
	return &models.Plan{Goal: "test", Steps: steps}
}

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name  string
		plan  *models.Plan
		order []string
	}{
		{
			name:  "independent steps keep planner order",
			plan:  planOf(step("c"), step("a"), step("b")),
			order: []string{"c", "a", "b"},
		},
		{
			name:  "dependency declared later moves first",
			plan:  planOf(step("summary", "fetch"), step("fetch")),
			order: []string{"fetch", "summary"},
		},
		{
			name:  "diamond",
			plan:  planOf(step("a"), step("b", "a"), step("c", "a"), step("d", "b", "c")),
			order: []string{"a", "b", "c", "d"},
		},
		{
			name:  "tie-break prefers lowest plan index once ready",
			plan:  planOf(step("x", "z"), step("y"), step("z")),
			order: []string{"y", "z", "x"},
		},
		{
			name: "parameter references add implicit dependencies",
			plan: planOf(
				models.Step{ID: "report", Capability: "noop", Parameters: map[string]any{
					"text": models.Reference{StepID: "weather", Path: []string{"output", "summary"}},
				}},
				step("weather"),
			),
			order: []string{"weather", "report"},
		},
		{
			name:  "empty plan",
			plan:  planOf(),
			order: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ResolveOrder(tt.plan)
			require.NoError(t, err)
			assert.Equal(t, tt.order, order)
		})
	}
}

func TestResolveOrder_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		plan  *models.Plan
		cycle []string
	}{
		{"two steps", planOf(step("a", "b"), step("b", "a")), []string{"a", "b", "a"}},
		{"self dependency", planOf(step("a", "a")), []string{"a", "a"}},
		{"three steps behind a valid root", planOf(step("root"), step("x", "root", "z"), step("y", "x"), step("z", "y")), []string{"x", "z", "y", "x"}},
		{
			name: "cycle through a reference",
			plan: planOf(
				models.Step{ID: "a", Capability: "noop", Parameters: map[string]any{"v": models.Reference{StepID: "b"}}},
				step("b", "a"),
			),
			cycle: []string{"a", "b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := ResolveOrder(tt.plan)
			require.Error(t, err)
			assert.Nil(t, order)
			assert.True(t, errors.Is(err, ErrCyclicDependency))
			assert.True(t, IsFatal(err))

			var ce *CycleError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.cycle, ce.Cycle)
		})
	}
}

func TestBuildDependencyGraph_Errors(t *testing.T) {
	t.Run("unknown depends_on", func(t *testing.T) {
		_, err := BuildDependencyGraph(planOf(step("a"), step("b", "ghost")))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnknownStepReference)

		var re *ReferenceError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "b", re.StepID)
		assert.Equal(t, "ghost", re.Missing)
		assert.Equal(t, "depends_on", re.Source)
	})

	t.Run("unknown parameter reference", func(t *testing.T) {
		_, err := BuildDependencyGraph(planOf(models.Step{
			ID: "a", Capability: "noop",
			Parameters: map[string]any{"q": []any{models.Reference{StepID: "nope"}}},
		}))
		var re *ReferenceError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "parameters", re.Source)
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := BuildDependencyGraph(planOf(step("a"), step("a")))
		assert.ErrorIs(t, err, ErrDuplicateStepID)
		assert.True(t, IsFatal(err))
	})
}

func TestDependencyGraph_Ready(t *testing.T) {
	g, err := BuildDependencyGraph(planOf(step("a"), step("b", "a"), step("c"), step("d", "b", "c")))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, g.Ready(map[string]bool{}))
	assert.Equal(t, []string{"b", "c"}, g.Ready(map[string]bool{"a": true}))
	assert.Equal(t, []string{"d"}, g.Ready(map[string]bool{"a": true, "b": true, "c": true}))
	assert.Empty(t, g.Ready(map[string]bool{"a": true, "b": true, "c": true, "d": true}))
	assert.Nil(t, g.DetectCycle())
}

// Every step must come after all of its dependencies, for any acyclic plan.
func TestResolveOrder_TopologicalProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(12)
		steps := make([]models.Step, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, fmt.Sprintf("s%d", j))
				}
			}
			steps[i] = step(fmt.Sprintf("s%d", i), deps...)
		}
		rng.Shuffle(n, func(i, j int) { steps[i], steps[j] = steps[j], steps[i] })
		plan := planOf(steps...)

		order, err := ResolveOrder(plan)
		require.NoError(t, err)
		require.Len(t, order, n)

		pos := make(map[string]int, n)
		for i, id := range order {
			pos[id] = i
		}
		for _, s := range plan.Steps {
			for _, dep := range s.Dependencies() {
				assert.Less(t, pos[dep], pos[s.ID], "trial %d: %s must follow %s", trial, s.ID, dep)
			}
		}

		again, err := ResolveOrder(plan)
		require.NoError(t, err)
		assert.Equal(t, order, again)
	}
}
