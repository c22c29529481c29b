package executor

import (
	"fmt"
	"sort"

	"github.com/harrison/taskpilot/internal/models"
)

// DependencyGraph is the validated dependency structure of a plan.
// Dependencies are the union of explicit depends_on ids and the step ids
// referenced from parameters.
type DependencyGraph struct {
	Steps    map[string]*models.Step
	Index    map[string]int      // step id -> planner position
	Deps     map[string][]string // step -> steps it depends on
	Edges    map[string][]string // step -> steps that depend on it
	InDegree map[string]int      // step -> number of distinct dependencies
}

// BuildDependencyGraph validates step ids and dependency targets and builds
// the graph. It does not check for cycles.
func BuildDependencyGraph(plan *models.Plan) (*DependencyGraph, error) {
	g := &DependencyGraph{
		Steps:    make(map[string]*models.Step, len(plan.Steps)),
		Index:    make(map[string]int, len(plan.Steps)),
		Deps:     make(map[string][]string, len(plan.Steps)),
		Edges:    make(map[string][]string, len(plan.Steps)),
		InDegree: make(map[string]int, len(plan.Steps)),
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		if _, exists := g.Steps[step.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStepID, step.ID)
		}
		g.Steps[step.ID] = step
		g.Index[step.ID] = i
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]
		for _, dep := range step.DependsOn {
			if _, ok := g.Steps[dep]; !ok {
				return nil, &ReferenceError{StepID: step.ID, Missing: dep, Source: "depends_on"}
			}
		}
		for _, ref := range step.References() {
			if _, ok := g.Steps[ref.StepID]; !ok {
				return nil, &ReferenceError{StepID: step.ID, Missing: ref.StepID, Source: "parameters"}
			}
		}

		deps := step.Dependencies()
		g.Deps[step.ID] = deps
		g.InDegree[step.ID] = len(deps)
		for _, dep := range deps {
			g.Edges[dep] = append(g.Edges[dep], step.ID)
		}
	}

	return g, nil
}

// DetectCycle returns one dependency cycle, with its first step repeated at
// the end, or nil when the graph is acyclic. Steps are visited in planner
// order so the reported cycle is stable.
func (g *DependencyGraph) DetectCycle() []string {
	const (
		white = 0 // not visited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)

	colors := make(map[string]int, len(g.Steps))
	var path []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		path = append(path, node)

		for _, dep := range g.Deps[node] {
			if colors[dep] == gray {
				start := 0
				for i, id := range path {
					if id == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
			if colors[dep] == white && dfs(dep) {
				return true
			}
		}

		path = path[:len(path)-1]
		colors[node] = black
		return false
	}

	for _, id := range g.orderedIDs() {
		if colors[id] == white && dfs(id) {
			return cycle
		}
	}
	return nil
}

// Ready returns the steps that are not done but whose dependencies all are,
// in planner order. It never decides which of them runs next.
func (g *DependencyGraph) Ready(done map[string]bool) []string {
	var ready []string
	for _, id := range g.orderedIDs() {
		if done[id] {
			continue
		}
		ok := true
		for _, dep := range g.Deps[id] {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// Order returns a topological order using Kahn's algorithm. When several
// steps are ready, the one earliest in the plan goes first.
func (g *DependencyGraph) Order() ([]string, error) {
	inDegree := make(map[string]int, len(g.InDegree))
	for id, n := range g.InDegree {
		inDegree[id] = n
	}

	var ready []string
	for _, id := range g.orderedIDs() {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.Steps))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range g.Edges[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = g.insertByIndex(ready, dependent)
			}
		}
	}

	if len(order) != len(g.Steps) {
		cycle := g.DetectCycle()
		return nil, &CycleError{Cycle: cycle}
	}
	return order, nil
}

// insertByIndex inserts id into ready, which is kept sorted by planner position.
func (g *DependencyGraph) insertByIndex(ready []string, id string) []string {
	pos := sort.Search(len(ready), func(i int) bool {
		return g.Index[ready[i]] > g.Index[id]
	})
	ready = append(ready, "")
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = id
	return ready
}

func (g *DependencyGraph) orderedIDs() []string {
	ids := make([]string, len(g.Index))
	for id, i := range g.Index {
		ids[i] = id
	}
	return ids
}

// ResolveOrder validates the plan's dependency structure and returns the
// execution order. It performs no I/O and is deterministic.
func ResolveOrder(plan *models.Plan) ([]string, error) {
	g, err := BuildDependencyGraph(plan)
	if err != nil {
		return nil, err
	}
	return g.Order()
}
