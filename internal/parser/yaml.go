package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/harrison/taskpilot/internal/models"
)

// YAMLParser parses YAML plan documents.
type YAMLParser struct{}

// NewYAMLParser creates a YAMLParser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

// Parse decodes a single YAML document from r.
func (p *YAMLParser) Parse(r io.Reader) (*models.Plan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	return parseYAMLBytes(data)
}

func parseYAMLBytes(data []byte) (*models.Plan, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	return decodeDocument(raw)
}
