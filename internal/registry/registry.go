// Package registry maps capability names to executable actions and their
// parameter schemas.
//
// A Registry is populated once at startup and then read concurrently by any
// number of plan runs. Descriptors are compiled at registration time so that
// validation during a run never fails for schema reasons.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// TimeoutClass selects the default per-attempt timeout for a capability.
type TimeoutClass string

// Timeout classes
const (
	ClassCompute TimeoutClass = "compute" // Local, CPU-bound work
	ClassNetwork TimeoutClass = "network" // Remote API calls
)

// Action performs the work behind a capability. Implementations must honour
// ctx cancellation and return a JSON-compatible payload.
type Action interface {
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, params map[string]any) (any, error)

// Invoke calls f.
func (f ActionFunc) Invoke(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Descriptor is everything the engine needs to know about a capability.
type Descriptor struct {
	Name         string           // Registry key, e.g. "search_repositories"
	Tool         string           // Owning tool, e.g. "github"
	Description  string           // Shown to planners and in `taskpilot capabilities`
	Action       Action           // Executes the capability
	Schema       Schema           // Parameter contract
	TimeoutClass TimeoutClass     // Defaults to ClassNetwork
	Timeout      time.Duration    // Overrides the class timeout when > 0
	Examples     []map[string]any // Sample parameter sets for planners

	compiled *jsonschema.Schema
}

// Validate applies schema defaults to params and validates the result.
// It returns the parameter map the action should receive.
func (d *Descriptor) Validate(params map[string]any) (map[string]any, error) {
	compiled := d.compiled
	if compiled == nil {
		var err error
		if compiled, err = d.Schema.compile(d.Name); err != nil {
			return nil, err
		}
	}
	withDefaults := d.Schema.withDefaults(params)
	if err := validateAgainst(compiled, d.Name, withDefaults); err != nil {
		return nil, err
	}
	return withDefaults, nil
}

// Registry is a concurrency-safe capability index.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]*Descriptor
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{caps: make(map[string]*Descriptor)}
}

// Register compiles the descriptor's schema and adds it to the registry.
func (r *Registry) Register(d Descriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if d.Action == nil {
		return fmt.Errorf("%w: %s: nil action", ErrInvalidDescriptor, d.Name)
	}
	if d.TimeoutClass == "" {
		d.TimeoutClass = ClassNetwork
	}
	if d.TimeoutClass != ClassCompute && d.TimeoutClass != ClassNetwork {
		return fmt.Errorf("%w: %s: unknown timeout class %q", ErrInvalidDescriptor, d.Name, d.TimeoutClass)
	}

	compiled, err := d.Schema.compile(d.Name)
	if err != nil {
		return err
	}
	d.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caps[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, d.Name)
	}
	r.caps[d.Name] = &d
	return nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	d, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	return d, nil
}

// Lookup reports whether name is registered.
func (r *Registry) Lookup(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.caps[name]
	return ok
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	out := make([]*Descriptor, 0, len(r.caps))
	for _, d := range r.caps {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns descriptors whose name, tool, description or parameter
// names contain query, case-insensitively. An empty query matches everything.
func (r *Registry) Search(query string) []*Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []*Descriptor
	for _, d := range r.List() {
		if q == "" || matches(d, q) {
			out = append(out, d)
		}
	}
	return out
}

func matches(d *Descriptor, q string) bool {
	if strings.Contains(strings.ToLower(d.Name), q) ||
		strings.Contains(strings.ToLower(d.Tool), q) ||
		strings.Contains(strings.ToLower(d.Description), q) {
		return true
	}
	for _, p := range d.Schema.Parameters {
		if strings.Contains(strings.ToLower(p.Name), q) {
			return true
		}
	}
	return false
}

// Tools groups capability names by owning tool. Names within a tool are sorted.
func (r *Registry) Tools() map[string][]string {
	out := make(map[string][]string)
	for _, d := range r.List() {
		tool := d.Tool
		if tool == "" {
			tool = "misc"
		}
		out[tool] = append(out[tool], d.Name)
	}
	return out
}

// CapabilityInfo is the planner-facing summary of a descriptor.
type CapabilityInfo struct {
	Name         string           `json:"name"`
	Tool         string           `json:"tool,omitempty"`
	Description  string           `json:"description"`
	TimeoutClass TimeoutClass     `json:"timeout_class"`
	Parameters   []Parameter      `json:"parameters"`
	Examples     []map[string]any `json:"examples,omitempty"`
}

// Catalog lists every capability in planner-facing form, sorted by name.
func (r *Registry) Catalog() []CapabilityInfo {
	descs := r.List()
	out := make([]CapabilityInfo, 0, len(descs))
	for _, d := range descs {
		params := d.Schema.Parameters
		if params == nil {
			params = []Parameter{}
		}
		out = append(out, CapabilityInfo{
			Name:         d.Name,
			Tool:         d.Tool,
			Description:  d.Description,
			TimeoutClass: d.TimeoutClass,
			Parameters:   params,
			Examples:     d.Examples,
		})
	}
	return out
}
