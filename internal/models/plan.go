package models

import "fmt"

// Plan is an ordered list of steps produced by a planner for a single goal.
// Step order is the planner's order; it is used as the tie-break when
// several steps are ready at the same time.
type Plan struct {
	Goal     string // Natural-language task the plan answers
	Steps    []Step // Steps in planner order
	FilePath string // Source document path (empty for in-memory plans)
}

// Step is one unit of work: a single capability invocation.
type Step struct {
	ID          string         // Unique within the plan
	Capability  string         // Registry name of the action to invoke
	Description string         // Human-readable intent, not interpreted
	Parameters  map[string]any // Literal values and References, possibly nested
	DependsOn   []string       // Explicit ordering dependencies
	Optional    bool           // Failure does not fail the plan
}

// Reference points at the recorded output of another step.
// An empty Path addresses the whole output.
type Reference struct {
	StepID string
	Path   []string
}

// String renders the reference in document form, e.g. "search.output.items".
func (r Reference) String() string {
	s := r.StepID
	for _, seg := range r.Path {
		s += "." + seg
	}
	return s
}

// Index returns the planner position of the step with the given id, or -1.
func (p *Plan) Index(id string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// Step returns the step with the given id.
func (p *Plan) Step(id string) (*Step, bool) {
	if i := p.Index(id); i >= 0 {
		return &p.Steps[i], true
	}
	return nil, false
}

// References lists every reference found in the step's parameters.
// Parameter names are visited in sorted order so the result is deterministic.
func (s *Step) References() []Reference {
	var refs []Reference
	for _, name := range sortedKeys(s.Parameters) {
		refs = collectReferences(s.Parameters[name], refs)
	}
	return refs
}

// Dependencies returns the explicit depends_on ids followed by the ids of
// referenced steps, without duplicates and in first-seen order.
func (s *Step) Dependencies() []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			deps = append(deps, id)
		}
	}
	for _, id := range s.DependsOn {
		add(id)
	}
	for _, ref := range s.References() {
		add(ref.StepID)
	}
	return deps
}

func collectReferences(v any, refs []Reference) []Reference {
	switch val := v.(type) {
	case Reference:
		return append(refs, val)
	case *Reference:
		if val != nil {
			return append(refs, *val)
		}
	case map[string]any:
		for _, k := range sortedKeys(val) {
			refs = collectReferences(val[k], refs)
		}
	case []any:
		for _, item := range val {
			refs = collectReferences(item, refs)
		}
	}
	return refs
}

// Validate checks structural invariants that do not need the dependency graph.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("step %d: empty id", i+1)
		}
		if step.Capability == "" {
			return fmt.Errorf("step %s: empty capability", step.ID)
		}
	}
	return nil
}
