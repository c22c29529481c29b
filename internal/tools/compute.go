package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/harrison/taskpilot/internal/registry"
)

func computeCapabilities() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Name:         "extract_field",
			Tool:         "compute",
			Description:  "Pluck a dotted field path from every element of a list",
			Action:       registry.ActionFunc(extractField),
			TimeoutClass: registry.ClassCompute,
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "items", Type: registry.TypeArray, Description: "List to read from, usually a reference to another step's output", Required: true},
				{Name: "path", Type: registry.TypeString, Description: "Dotted path inside each element, e.g. 'owner.login'", Required: true, MinLength: 1},
				{Name: "skip_missing", Type: registry.TypeBoolean, Description: "Drop elements without the field instead of failing", Default: false},
			}},
			Examples: []map[string]any{
				{"items": map[string]any{"$ref": "search.output.repositories"}, "path": "full_name"},
			},
		},
		{
			Name:         "format_text",
			Tool:         "compute",
			Description:  "Render a Go text/template against a map of values",
			Action:       registry.ActionFunc(formatText),
			TimeoutClass: registry.ClassCompute,
			Schema: registry.Schema{Parameters: []registry.Parameter{
				{Name: "template", Type: registry.TypeString, Description: "Template text, e.g. 'It is {{.temp}} degrees in {{.city}}'", Required: true},
				{Name: "values", Type: registry.TypeObject, Description: "Values available to the template as {{.name}}", Default: map[string]any{}},
			}},
			Examples: []map[string]any{
				{"template": "{{.repo}} has {{.stars}} stars", "values": map[string]any{"repo": "golang/go", "stars": 1}},
			},
		},
	}
}

func extractField(ctx context.Context, params map[string]any) (any, error) {
	items, ok := params["items"].([]any)
	if !ok {
		return nil, invalidParam("items", "must be a list, got %T", params["items"])
	}
	path, err := requiredString(params, "path")
	if err != nil {
		return nil, err
	}
	skipMissing, _ := params["skip_missing"].(bool)
	segments := strings.Split(path, ".")

	values := make([]any, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := pluck(item, segments)
		if err != nil {
			if skipMissing {
				continue
			}
			return nil, registry.MarkPermanent(fmt.Errorf("item %d: %w", i, err))
		}
		values = append(values, v)
	}
	return map[string]any{"values": values, "count": len(values)}, nil
}

// pluck walks segments through nested maps and lists.
func pluck(v any, segments []string) (any, error) {
	cur := v
	for i, seg := range segments {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, fmt.Errorf("no field %q at %s", seg, strings.Join(segments[:i+1], "."))
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid list index %q at %s (len %d)", seg, strings.Join(segments[:i+1], "."), len(node))
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %s", cur, strings.Join(segments[:i+1], "."))
		}
	}
	return cur, nil
}

func formatText(_ context.Context, params map[string]any) (any, error) {
	text, _ := params["template"].(string)
	values, _ := params["values"].(map[string]any)
	if values == nil {
		values = map[string]any{}
	}

	tmpl, err := template.New("format_text").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, invalidParam("template", "%v", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, values); err != nil {
		return nil, registry.MarkPermanent(fmt.Errorf("render template: %w", err))
	}
	return map[string]any{"text": b.String()}, nil
}
