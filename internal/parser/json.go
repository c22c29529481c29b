package parser

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/harrison/taskpilot/internal/models"
)

// JSONParser parses JSON plan documents.
type JSONParser struct{}

// NewJSONParser creates a JSONParser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse decodes a single JSON document from r.
func (p *JSONParser) Parse(r io.Reader) (*models.Plan, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return decodeDocument(raw)
}
