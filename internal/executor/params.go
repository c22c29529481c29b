package executor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/harrison/taskpilot/internal/models"
)

// ResolveParameters substitutes every Reference in the step's parameters with
// the value it points to in ec. Literals are copied through unchanged.
// Resolution is all-or-nothing: on any failure the returned map is nil and
// the error is a *ResolutionError.
func ResolveParameters(step *models.Step, ec *ExecutionContext) (map[string]any, error) {
	names := make([]string, 0, len(step.Parameters))
	for name := range step.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved := make(map[string]any, len(step.Parameters))
	for _, name := range names {
		v, err := resolveValue(step.Parameters[name], ec)
		if err != nil {
			var re *ResolutionError
			if errors.As(err, &re) {
				re.StepID = step.ID
				re.Parameter = name
			}
			return nil, err
		}
		resolved[name] = v
	}
	return resolved, nil
}

func resolveValue(v any, ec *ExecutionContext) (any, error) {
	switch val := v.(type) {
	case models.Reference:
		return resolveReference(val, ec)
	case *models.Reference:
		if val == nil {
			return nil, nil
		}
		return resolveReference(*val, ec)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolveValue(item, ec)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := resolveValue(item, ec)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveReference(ref models.Reference, ec *ExecutionContext) (any, error) {
	payload, ok := ec.Output(ref.StepID)
	if !ok {
		reason := "not yet executed"
		if r, recorded := ec.Get(ref.StepID); recorded {
			reason = "status " + string(r.Status)
		}
		return nil, &ResolutionError{
			Reference: ref.String(),
			Err:       fmt.Errorf("%w: step %s: %s", ErrMissingDependencyOutput, ref.StepID, reason),
		}
	}

	value, err := lookupPath(payload, ref.Path)
	if err != nil {
		return nil, &ResolutionError{Reference: ref.String(), Err: err}
	}
	return deepCopy(value), nil
}

// lookupPath walks path through payload. A leading "output" segment names the
// payload itself unless the payload is a map with a literal "output" key.
func lookupPath(payload any, path []string) (any, error) {
	if len(path) > 0 && path[0] == "output" {
		m, isMap := payload.(map[string]any)
		if _, hasKey := m["output"]; !isMap || !hasKey {
			path = path[1:]
		}
	}

	current := payload
	for i, seg := range path {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fieldNotFound(path[:i+1], "no such key")
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return nil, fieldNotFound(path[:i+1], "list index must be an integer")
			}
			if idx < 0 || idx >= len(node) {
				return nil, fieldNotFound(path[:i+1], fmt.Sprintf("index out of range (len %d)", len(node)))
			}
			current = node[idx]
		default:
			return nil, fieldNotFound(path[:i+1], fmt.Sprintf("cannot descend into %T", current))
		}
	}
	return current, nil
}

func fieldNotFound(path []string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrFieldNotFound, strings.Join(path, "."), reason)
}

// deepCopy copies JSON-shaped containers so actions cannot mutate recorded outputs.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
