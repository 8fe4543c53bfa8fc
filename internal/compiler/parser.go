package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/weft/pkg/domain"
)

// Parser is responsible for converting flow files into a FlowDocument.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads a flow file. Files ending in .yaml or .yml are read as
// YAML, anything else as JSON.
func (p *Parser) ParseFile(path string) (domain.FlowDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.FlowDocument{}, fmt.Errorf("failed to read flow: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return p.ParseYAML(data)
	default:
		return p.Parse(data)
	}
}

// Parse decodes a JSON flow document.
func (p *Parser) Parse(data []byte) (domain.FlowDocument, error) {
	var doc domain.FlowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse flow: %w", err)
	}
	return doc, p.check(doc)
}

// ParseYAML decodes a YAML flow document. Keys follow the JSON field names.
func (p *Parser) ParseYAML(data []byte) (domain.FlowDocument, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return domain.FlowDocument{}, fmt.Errorf("failed to parse flow: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return domain.FlowDocument{}, fmt.Errorf("failed to convert flow: %w", err)
	}
	return p.Parse(raw)
}

func (p *Parser) check(doc domain.FlowDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("flow missing id")
	}
	return nil
}
