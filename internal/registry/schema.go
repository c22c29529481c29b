package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ParamType is the JSON type accepted for a parameter.
type ParamType string

// Parameter types
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeInteger ParamType = "integer"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Parameter describes one named input of a capability.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	MinLength   int       `json:"min_length,omitempty"` // Strings only
	MaxLength   int       `json:"max_length,omitempty"` // Strings only; zero means unbounded
}

// Schema is the parameter contract of a capability. Parameters not listed are
// passed through unchecked.
type Schema struct {
	Parameters []Parameter `json:"parameters"`
}

// Bound is a helper for Parameter.Minimum and Parameter.Maximum.
func Bound(v float64) *float64 {
	return &v
}

// JSONSchema renders the parameter list as a JSON Schema object document.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Parameters))
	required := []any{}
	for _, p := range s.Parameters {
		prop := map[string]any{}
		if p.Type != "" {
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		if p.MinLength > 0 {
			prop["minLength"] = p.MinLength
		}
		if p.MaxLength > 0 {
			prop["maxLength"] = p.MaxLength
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// compile turns the parameter list into a validator. The schema document goes
// through jsonschema.UnmarshalJSON so numbers are json.Number, as the
// validator expects.
func (s Schema) compile(name string) (*jsonschema.Schema, error) {
	for _, p := range s.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: %s: parameter with empty name", ErrInvalidDescriptor, name)
		}
	}

	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema for %s: %w", name, err)
	}

	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return compiled, nil
}

// withDefaults returns a shallow copy of params with schema defaults filled
// in for absent keys.
func (s Schema) withDefaults(params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(s.Parameters))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range s.Parameters {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// validateAgainst checks params against a compiled schema and converts
// validator output into a ValidationError.
func validateAgainst(compiled *jsonschema.Schema, capability string, params map[string]any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return &ValidationError{Capability: capability, Problems: []string{fmt.Sprintf("parameters are not JSON-encodable: %v", err)}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &ValidationError{Capability: capability, Problems: []string{err.Error()}}
	}
	if err := compiled.Validate(inst); err != nil {
		return &ValidationError{Capability: capability, Problems: validationProblems(err)}
	}
	return nil
}

// validationProblems flattens the validator's multi-line report into one
// entry per failing location.
func validationProblems(err error) []string {
	lines := strings.Split(err.Error(), "\n")
	var problems []string
	for _, line := range lines[1:] {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			problems = append(problems, line)
		}
	}
	if len(problems) == 0 {
		problems = []string{strings.TrimSpace(err.Error())}
	}
	return problems
}
