package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/harrison/taskpilot/internal/models"
)

// ErrInvalidDocument is returned when a plan document does not match the
// plan document schema or contains a malformed reference.
var ErrInvalidDocument = errors.New("invalid plan document")

var (
	documentSchemaOnce sync.Once
	documentSchema     *jsonschema.Schema
	documentSchemaErr  error
)

func planSchema() (*jsonschema.Schema, error) {
	documentSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(models.PlanDocumentSchema()))
		if err != nil {
			documentSchemaErr = fmt.Errorf("unmarshal plan schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("plan.schema.json", doc); err != nil {
			documentSchemaErr = fmt.Errorf("add plan schema resource: %w", err)
			return
		}
		documentSchema, documentSchemaErr = c.Compile("plan.schema.json")
	})
	return documentSchema, documentSchemaErr
}

// refString matches the whole-string reference shorthand "${step.path}".
var refString = regexp.MustCompile(`^\$\{([^{}]+)\}$`)

// decodeDocument normalizes aliases, validates the result against the plan
// document schema and converts it into a Plan.
func decodeDocument(raw any) (*models.Plan, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be an object, got %T", ErrInvalidDocument, raw)
	}
	doc = normalizeAliases(doc)

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	plan := &models.Plan{}
	if goal, ok := doc["goal"].(string); ok {
		plan.Goal = goal
	}

	rawSteps, _ := doc["steps"].([]any)
	for i, rs := range rawSteps {
		step, err := decodeStep(rs.(map[string]any))
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrInvalidDocument, i+1, err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// normalizeAliases rewrites planner field names to the canonical ones.
// Canonical names win when both are present.
func normalizeAliases(doc map[string]any) map[string]any {
	out := renameKey(doc, "task_description", "goal")
	if steps, ok := out["steps"].([]any); ok {
		normalized := make([]any, len(steps))
		for i, s := range steps {
			if m, ok := s.(map[string]any); ok {
				m = renameKey(m, "step_id", "id")
				m = renameKey(m, "dependencies", "depends_on")
				normalized[i] = m
			} else {
				normalized[i] = s
			}
		}
		out["steps"] = normalized
	}
	return out
}

func renameKey(m map[string]any, alias, canonical string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	if v, ok := out[alias]; ok {
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
		delete(out, alias)
	}
	return out
}

func validateDocument(doc map[string]any) error {
	schema, err := planSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func decodeStep(m map[string]any) (models.Step, error) {
	id, err := idString(m["id"])
	if err != nil {
		return models.Step{}, err
	}
	step := models.Step{ID: id}
	step.Capability, _ = m["capability"].(string)
	step.Description, _ = m["description"].(string)
	step.Optional, _ = m["optional"].(bool)

	if deps, ok := m["depends_on"].([]any); ok {
		for _, d := range deps {
			depID, err := idString(d)
			if err != nil {
				return models.Step{}, fmt.Errorf("depends_on: %v", err)
			}
			step.DependsOn = append(step.DependsOn, depID)
		}
	}

	if params, ok := m["parameters"].(map[string]any); ok {
		converted, err := convertValue(params)
		if err != nil {
			return models.Step{}, fmt.Errorf("step %s: %v", id, err)
		}
		step.Parameters = converted.(map[string]any)
	} else {
		step.Parameters = map[string]any{}
	}
	return step, nil
}

// idString accepts string ids and whole-number ids from JSON or YAML.
// maxExactID is the largest integer a float64 id represents exactly.
const maxExactID = 1<<53 - 1

func idString(v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		if id != math.Trunc(id) {
			return "", fmt.Errorf("step id %v is not a whole number", id)
		}
		if math.Abs(id) > maxExactID {
			return "", fmt.Errorf("step id %v is out of range", id)
		}
		return strconv.FormatInt(int64(id), 10), nil
	case json.Number:
		return id.String(), nil
	default:
		return "", fmt.Errorf("unsupported step id type %T", v)
	}
}

// convertValue turns reference forms into models.Reference, recursing into
// maps and lists.
func convertValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if target, ok := val["$ref"]; ok && len(val) == 1 {
			s, ok := target.(string)
			if !ok {
				return nil, fmt.Errorf("$ref must be a string, got %T", target)
			}
			return ParseReference(s)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, err := convertValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := convertValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case string:
		if m := refString.FindStringSubmatch(val); m != nil {
			return ParseReference(m[1])
		}
		return val, nil
	default:
		return v, nil
	}
}

// ParseReference parses "step.output.field" into a Reference. The text before
// the first dot is the step id; the rest is the field path.
func ParseReference(s string) (models.Reference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.Reference{}, fmt.Errorf("empty reference")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return models.Reference{}, fmt.Errorf("malformed reference %q", s)
		}
	}
	ref := models.Reference{StepID: parts[0]}
	if len(parts) > 1 {
		ref.Path = parts[1:]
	}
	return ref, nil
}
