// Package parser reads plan documents (JSON, YAML or Markdown) into models.Plan.
//
// All formats share one document shape, checked against
// models.PlanDocumentSchema before conversion:
//
//	{"goal": "...", "steps": [{"id": "a", "capability": "...", "parameters": {...},
//	  "depends_on": ["..."], "optional": false, "description": "..."}]}
//
// Planner output aliases are accepted: task_description for goal, step_id for
// id and dependencies for depends_on. Parameter values reference earlier
// outputs with {"$ref": "step.output.field"} or the string "${step.output.field}".
package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrison/taskpilot/internal/models"
)

// Format represents the format of a plan document
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatJSON represents a JSON (.json) plan document
	FormatJSON
	// FormatYAML represents a YAML (.yaml, .yml) plan document
	FormatYAML
	// FormatMarkdown represents a Markdown (.md, .markdown) document with a fenced plan block
	FormatMarkdown
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "markdown"
	default:
		return "unknown"
	}
}

// ParseFormat maps a format name (as accepted by --format) to a Format.
func ParseFormat(name string) Format {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "markdown", "md":
		return FormatMarkdown
	default:
		return FormatUnknown
	}
}

// Parser is the interface that all plan parsers implement
type Parser interface {
	// Parse reads from an io.Reader and returns a parsed Plan
	Parse(r io.Reader) (*models.Plan, error)
}

// DetectFormat detects the plan format from the file extension:
//   - .json -> FormatJSON
//   - .yaml, .yml -> FormatYAML
//   - .md, .markdown -> FormatMarkdown
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatUnknown
	}
}

// NewParser creates a parser for the specified format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatJSON:
		return NewJSONParser(), nil
	case FormatYAML:
		return NewYAMLParser(), nil
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// ParseFile detects the format from the extension, parses the file and
// records its absolute path in plan.FilePath.
func ParseFile(path string) (*models.Plan, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .json, .yaml, .yml, .md, .markdown)", path)
	}
	return ParseFileAs(path, format)
}

// ParseFileAs parses path with an explicit format.
func ParseFileAs(path string, format Format) (*models.Plan, error) {
	p, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	plan, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	plan.FilePath = absPath
	return plan, nil
}
