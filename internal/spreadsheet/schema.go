// Package spreadsheet reads product rows out of uploaded workbooks and writes
// the filtered copy back. Column layout is driven by a versioned Schema.
package spreadsheet

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ColumnType constrains the cell values of a column.
type ColumnType string

const (
	TypeText    ColumnType = "text"
	TypeHTML    ColumnType = "html"
	TypeInteger ColumnType = "integer"
	TypeDate    ColumnType = "date"
)

// Internal field names bound to schema columns.
const (
	FieldProductCode = "product_code"
	FieldName        = "name"
	FieldDescription = "description"
)

var requiredFields = []string{FieldProductCode, FieldName, FieldDescription}

// Column maps a header in the workbook to an internal field and a type. An
// optional column may be absent; when present its values are still checked.
type Column struct {
	Name     string     `yaml:"name"`
	Field    string     `yaml:"field,omitempty"`
	Type     ColumnType `yaml:"type"`
	Optional bool       `yaml:"optional,omitempty"`
}

// Schema is the ordered column list expected in uploaded workbooks. When
// Strict is set the header must match Columns exactly and in order; otherwise
// the listed columns must be present and extra columns are carried through.
type Schema struct {
	Version int      `yaml:"version"`
	Sheet   string   `yaml:"sheet,omitempty"`
	Strict  bool     `yaml:"strict"`
	Columns []Column `yaml:"columns"`
}

//go:embed schema/default.yaml
var defaultSchema []byte

// DefaultSchema returns the embedded schema.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchema)
	if err != nil {
		panic(fmt.Sprintf("embedded schema: %v", err))
	}
	return s
}

// LoadSchema reads a schema file, or returns the default when path is empty.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(data)
}

// ParseSchema decodes and validates a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Schema) validate() error {
	if s.Version <= 0 {
		return fmt.Errorf("schema: version must be positive")
	}
	names := make(map[string]bool, len(s.Columns))
	fields := make(map[string]bool, len(requiredFields))
	for i := range s.Columns {
		c := &s.Columns[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("schema: column %d has no name", i+1)
		}
		if names[c.Name] {
			return fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		names[c.Name] = true
		switch c.Type {
		case "":
			c.Type = TypeText
		case TypeText, TypeHTML, TypeInteger, TypeDate:
		default:
			return fmt.Errorf("schema: column %q has unknown type %q", c.Name, c.Type)
		}
		if c.Optional && (c.Field != "" || s.Strict) {
			return fmt.Errorf("schema: column %q cannot be optional", c.Name)
		}
		if c.Field != "" {
			if fields[c.Field] {
				return fmt.Errorf("schema: field %q bound twice", c.Field)
			}
			fields[c.Field] = true
		}
	}
	for _, f := range requiredFields {
		if !fields[f] {
			return fmt.Errorf("schema: no column bound to field %q", f)
		}
	}
	return nil
}

// Column returns the column bound to field.
func (s *Schema) Column(field string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Field == field {
			return c, true
		}
	}
	return Column{}, false
}

// Header lists the column names in schema order.
func (s *Schema) Header() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

func (s *Schema) requiredNames() []string {
	out := make([]string, 0, len(requiredFields))
	for _, f := range requiredFields {
		c, _ := s.Column(f)
		out = append(out, c.Name)
	}
	return out
}
