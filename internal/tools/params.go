package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/harrison/taskpilot/internal/registry"
)

// invalidParam reports a parameter the schema accepted but the action cannot use.
func invalidParam(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", registry.ErrInvalidParameters, name, fmt.Sprintf(format, args...))
}

// stringParam returns params[name] as a trimmed string, or "" when absent.
func stringParam(params map[string]any, name string) string {
	s, _ := params[name].(string)
	return strings.TrimSpace(s)
}

// requiredString is stringParam that rejects blank values.
func requiredString(params map[string]any, name string) (string, error) {
	s := stringParam(params, name)
	if s == "" {
		return "", invalidParam(name, "must be a non-empty string")
	}
	return s, nil
}

// numberParam returns params[name] as a float64. YAML plans produce ints,
// JSON plans float64.
func numberParam(params map[string]any, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// intParam returns params[name] as an int, def when absent.
func intParam(params map[string]any, name string, def int) (int, error) {
	if _, ok := params[name]; !ok {
		return def, nil
	}
	f, ok := numberParam(params, name)
	if !ok || f != math.Trunc(f) {
		return 0, invalidParam(name, "must be an integer")
	}
	return int(f), nil
}
