package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldSpec declares one expected field of a table.
type FieldSpec struct {
	Type     string      `yaml:"type"` // string | number | bool | map | list
	Required bool        `yaml:"required"`
	Default  interface{} `yaml:"default"`
}

// HasDefault reports whether the schema declares a fallback value for this
// field. A missing required field with a default is auto-fixable.
func (f FieldSpec) HasDefault() bool {
	return f.Default != nil
}

// Matches reports whether a Value conforms to the declared field type.
// Null always conforms; a null slot is absence of data, not a type error.
func (f FieldSpec) Matches(v Value) bool {
	if v.Kind == KindNull {
		return true
	}
	switch f.Type {
	case "string":
		return v.Kind == KindString
	case "number":
		return v.Kind == KindNumber
	case "bool":
		return v.Kind == KindBool
	case "map":
		return v.Kind == KindMap
	case "list":
		return v.Kind == KindList
	case "":
		return true
	}
	return false
}

// Reference declares a foreign-key style field: its value must be the id of
// a record in the referenced table.
type Reference struct {
	Field    string `yaml:"field"`
	Table    string `yaml:"table"`
	Required bool   `yaml:"required"`
}

// TableSchema declares the expected shape of one source table.
type TableSchema struct {
	Name          string               `yaml:"name"`
	IDField       string               `yaml:"id_field"`
	PayloadColumn string               `yaml:"payload_column"`
	Fields        map[string]FieldSpec `yaml:"fields"`
	References    []Reference          `yaml:"references"`
}

// SchemaSet is the full declared schema: an ordered list of tables. Order
// matters for deterministic scans and migration (parents before children).
type SchemaSet struct {
	Version int           `yaml:"version"`
	Tables  []TableSchema `yaml:"tables"`
}

// TableNames returns the table names in declaration order.
func (s *SchemaSet) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// TableFor looks up the schema for a table, or nil when undeclared.
func (s *SchemaSet) TableFor(name string) *TableSchema {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// LoadSchemaSet parses a YAML schema document and checks it for the mistakes
// that would otherwise surface as confusing scan results later: tables
// without names or id fields, references to undeclared tables.
func LoadSchemaSet(data []byte) (*SchemaSet, error) {
	var s SchemaSet
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	if len(s.Tables) == 0 {
		return nil, fmt.Errorf("schema declares no tables")
	}
	for _, t := range s.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("schema contains a table without a name")
		}
		if t.IDField == "" {
			return nil, fmt.Errorf("table %s: id_field is required", t.Name)
		}
		for _, ref := range t.References {
			if s.TableFor(ref.Table) == nil {
				return nil, fmt.Errorf("table %s: reference %s points at undeclared table %s",
					t.Name, ref.Field, ref.Table)
			}
		}
	}
	return &s, nil
}

// DefaultSchemaSet is the built-in schema for the process-diagram store:
// processes own elements and metadata, connections join two elements.
func DefaultSchemaSet() *SchemaSet {
	return &SchemaSet{
		Version: 1,
		Tables: []TableSchema{
			{
				Name:          "processes",
				IDField:       "id",
				PayloadColumn: "data",
				Fields: map[string]FieldSpec{
					"name":    {Type: "string", Required: true},
					"version": {Type: "number", Default: float64(1)},
				},
			},
			{
				Name:          "elements",
				IDField:       "id",
				PayloadColumn: "data",
				Fields: map[string]FieldSpec{
					"element_type": {Type: "string", Required: true},
					"label":        {Type: "string"},
				},
				References: []Reference{
					{Field: "process_id", Table: "processes", Required: true},
				},
			},
			{
				Name:    "connections",
				IDField: "id",
				Fields: map[string]FieldSpec{
					"connection_type": {Type: "string", Default: "sequence"},
				},
				References: []Reference{
					{Field: "process_id", Table: "processes", Required: true},
					{Field: "source_id", Table: "elements", Required: true},
					{Field: "target_id", Table: "elements", Required: true},
				},
			},
			{
				Name:    "metadata",
				IDField: "id",
				Fields: map[string]FieldSpec{
					"key":   {Type: "string", Required: true},
					"value": {Type: "string"},
				},
				References: []Reference{
					{Field: "process_id", Table: "processes", Required: true},
				},
			},
		},
	}
}
