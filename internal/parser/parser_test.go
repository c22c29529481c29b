package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/taskpilot/internal/models"
)

const jsonPlan = `{
  "goal": "Compare the weather in Paris and the top Go repository",
  "steps": [
    {"id": "search", "capability": "search_repositories", "parameters": {"query": "language:go", "per_page": 1}},
    {"id": "weather", "capability": "get_current_weather", "parameters": {"city": "Paris"}, "optional": true},
    {"id": "report", "capability": "format_text", "depends_on": ["weather"],
     "parameters": {
       "template": "{{.repo}}",
       "values": {"repo": {"$ref": "search.output.items.0.full_name"}, "temp": "${weather.output.temperature}"}
     }}
  ]
}`

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"plan.json":     FormatJSON,
		"plan.YAML":     FormatYAML,
		"plan.yml":      FormatYAML,
		"plan.md":       FormatMarkdown,
		"plan.markdown": FormatMarkdown,
		"plan.txt":      FormatUnknown,
		"plan":          FormatUnknown,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, DetectFormat(name))
		})
	}

	assert.Equal(t, "json", FormatJSON.String())
	assert.Equal(t, "unknown", FormatUnknown.String())
	assert.Equal(t, FormatYAML, ParseFormat("yml"))
	assert.Equal(t, FormatMarkdown, ParseFormat(" MD "))
	assert.Equal(t, FormatUnknown, ParseFormat("toml"))

	_, err := NewParser(FormatUnknown)
	assert.Error(t, err)
}

func TestJSONParser(t *testing.T) {
	plan, err := NewJSONParser().Parse(strings.NewReader(jsonPlan))
	require.NoError(t, err)

	assert.Equal(t, "Compare the weather in Paris and the top Go repository", plan.Goal)
	require.Len(t, plan.Steps, 3)

	search := plan.Steps[0]
	assert.Equal(t, "search", search.ID)
	assert.Equal(t, "search_repositories", search.Capability)
	assert.Equal(t, 1.0, search.Parameters["per_page"])
	assert.False(t, search.Optional)

	assert.True(t, plan.Steps[1].Optional)

	report := plan.Steps[2]
	assert.Equal(t, []string{"weather"}, report.DependsOn)
	values := report.Parameters["values"].(map[string]any)
	assert.Equal(t, models.Reference{StepID: "search", Path: []string{"output", "items", "0", "full_name"}}, values["repo"])
	assert.Equal(t, models.Reference{StepID: "weather", Path: []string{"output", "temperature"}}, values["temp"])
	assert.Equal(t, "{{.repo}}", report.Parameters["template"], "non-reference strings stay literal")
	assert.Equal(t, []string{"weather", "search"}, report.Dependencies())
}

func TestJSONParser_PlannerAliases(t *testing.T) {
	doc := `{
	  "task_description": "Get user info",
	  "steps": [
	    {"step_id": 1, "capability": "get_user_info", "parameters": {"username": "octocat"}},
	    {"step_id": 2, "capability": "list_repository_commits", "dependencies": [1],
	     "parameters": {"owner": "${1.output.login}", "repo": "hello-world"}}
	  ]
	}`

	plan, err := NewJSONParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "Get user info", plan.Goal)
	assert.Equal(t, "1", plan.Steps[0].ID)
	assert.Equal(t, "2", plan.Steps[1].ID)
	assert.Equal(t, []string{"1"}, plan.Steps[1].DependsOn)
	assert.Equal(t, models.Reference{StepID: "1", Path: []string{"output", "login"}}, plan.Steps[1].Parameters["owner"])
}

func TestJSONParser_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an object", `[1, 2]`},
		{"no steps", `{"goal": "x", "steps": []}`},
		{"missing capability", `{"steps": [{"id": "a"}]}`},
		{"dotted id", `{"steps": [{"id": "a.b", "capability": "x"}]}`},
		{"fractional id", `{"steps": [{"id": 1.5, "capability": "x"}]}`},
		{"id beyond exact integer range", `{"steps": [{"id": 1e19, "capability": "x"}]}`},
		{"optional not bool", `{"steps": [{"id": "a", "capability": "x", "optional": "yes"}]}`},
		{"parameters not object", `{"steps": [{"id": "a", "capability": "x", "parameters": [1]}]}`},
		{"non-string $ref", `{"steps": [{"id": "a", "capability": "x", "parameters": {"v": {"$ref": 3}}}]}`},
		{"malformed reference", `{"steps": [{"id": "a", "capability": "x", "parameters": {"v": "${b..c}"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJSONParser().Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}

	_, err := NewJSONParser().Parse(strings.NewReader(`{"steps": `))
	assert.Error(t, err)
}

func TestIDString_Range(t *testing.T) {
	got, err := idString(float64(maxExactID))
	require.NoError(t, err)
	assert.Equal(t, "9007199254740991", got)

	for _, id := range []float64{1e19, -1e19, 1 << 63} {
		_, err := idString(id)
		assert.Error(t, err, "id %v", id)
	}
}

func TestYAMLParser(t *testing.T) {
	doc := `
goal: Weather report
steps:
  - id: current
    capability: get_current_weather
    parameters:
      city: London
      units: metric
  - id: summary
    capability: format_text
    parameters:
      template: "It is {{.temp}} degrees"
      values:
        temp:
          $ref: current.output.temperature
`
	plan, err := NewYAMLParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "Weather report", plan.Goal)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "London", plan.Steps[0].Parameters["city"])
	values := plan.Steps[1].Parameters["values"].(map[string]any)
	assert.Equal(t, models.Reference{StepID: "current", Path: []string{"output", "temperature"}}, values["temp"])
	assert.NotNil(t, plan.Steps[0].Parameters)
}

func TestMarkdownParser(t *testing.T) {
	doc := "---\ngoal: From frontmatter\n---\n# Heading goal\n\nSome prose.\n\n```bash\necho ignored\n```\n\n```yaml\nsteps:\n  - id: a\n    capability: get_user_info\n    parameters:\n      username: octocat\n```\n\n```json\n{\"steps\": [{\"id\": \"second\", \"capability\": \"x\"}]}\n```\n"

	plan, err := NewMarkdownParser().Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "From frontmatter", plan.Goal)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "a", plan.Steps[0].ID)
}

func TestMarkdownParser_GoalPrecedence(t *testing.T) {
	headingOnly := "# Find Go repos\n\n```json\n{\"steps\": [{\"id\": \"a\", \"capability\": \"x\"}]}\n```\n"
	plan, err := NewMarkdownParser().Parse(strings.NewReader(headingOnly))
	require.NoError(t, err)
	assert.Equal(t, "Find Go repos", plan.Goal)

	inBlock := "# Heading\n\n```json\n{\"goal\": \"from block\", \"steps\": [{\"id\": \"a\", \"capability\": \"x\"}]}\n```\n"
	plan, err = NewMarkdownParser().Parse(strings.NewReader(inBlock))
	require.NoError(t, err)
	assert.Equal(t, "from block", plan.Goal)
}

func TestMarkdownParser_NoBlock(t *testing.T) {
	_, err := NewMarkdownParser().Parse(strings.NewReader("# Nothing here\n\njust text\n"))
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(jsonPlan), 0o644))

	plan, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, plan.FilePath)
	assert.Len(t, plan.Steps, 3)

	_, err = ParseFile(filepath.Join(dir, "plan.txt"))
	assert.ErrorContains(t, err, "unknown file format")

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to open file")

	txt := filepath.Join(dir, "plan.txt")
	require.NoError(t, os.WriteFile(txt, []byte(jsonPlan), 0o644))
	plan, err = ParseFileAs(txt, FormatJSON)
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("weather")
	require.NoError(t, err)
	assert.Equal(t, models.Reference{StepID: "weather"}, ref)

	ref, err = ParseReference(" a.output.items.2 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"output", "items", "2"}, ref.Path)

	for _, bad := range []string{"", ".output", "a.", "a..b"} {
		_, err := ParseReference(bad)
		assert.Error(t, err, bad)
	}
}
