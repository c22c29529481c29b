package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/taskpilot/internal/models"
)

// MarkdownParser reads a plan embedded in a Markdown document. The plan is
// the first fenced code block tagged json, yaml or yml. When that block has
// no goal, the goal comes from the frontmatter `goal:` key, then from the
// first level-1 heading.
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a MarkdownParser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

type markdownFrontmatter struct {
	Goal string `yaml:"goal"`
}

// Parse reads the whole document from r and extracts the plan.
func (p *MarkdownParser) Parse(r io.Reader) (*models.Plan, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var fm markdownFrontmatter
	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	heading, block, lang := findPlanBlock(doc, content)
	if block == nil {
		return nil, fmt.Errorf("%w: no json or yaml code block found", ErrInvalidDocument)
	}

	var plan *models.Plan
	if lang == "json" {
		var raw any
		if err := json.Unmarshal(block, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode JSON code block: %w", err)
		}
		plan, err = decodeDocument(raw)
	} else {
		plan, err = parseYAMLBytes(block)
	}
	if err != nil {
		return nil, err
	}

	if plan.Goal == "" {
		plan.Goal = fm.Goal
	}
	if plan.Goal == "" {
		plan.Goal = heading
	}
	return plan, nil
}

// findPlanBlock walks the document once, returning the first H1 text and the
// first fenced block whose info string is json, yaml or yml.
func findPlanBlock(doc ast.Node, source []byte) (string, []byte, string) {
	var heading string
	var block []byte
	var lang string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && heading == "" {
				heading = strings.TrimSpace(extractText(node, source))
			}
		case *ast.FencedCodeBlock:
			if block != nil {
				return ast.WalkSkipChildren, nil
			}
			l := strings.ToLower(string(node.Language(source)))
			switch l {
			case "json":
				lang = "json"
			case "yaml", "yml":
				lang = "yaml"
			default:
				return ast.WalkSkipChildren, nil
			}
			var buf bytes.Buffer
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			block = buf.Bytes()
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return heading, block, lang
}

// extractText concatenates the text children of a node.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return buf.String()
}

// extractFrontmatter splits a leading "---" delimited YAML block from the body.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}
	return content, nil
}
