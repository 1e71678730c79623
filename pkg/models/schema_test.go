package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchemaSet(t *testing.T) {
	yaml := `
version: 1
tables:
  - name: processes
    id_field: id
    payload_column: data
    fields:
      name: { type: string, required: true }
      version: { type: number, default: 1 }
  - name: elements
    id_field: id
    references:
      - { field: process_id, table: processes, required: true }
`
	schema, err := LoadSchemaSet([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, []string{"processes", "elements"}, schema.TableNames())

	proc := schema.TableFor("processes")
	require.NotNil(t, proc)
	assert.Equal(t, "data", proc.PayloadColumn)
	assert.True(t, proc.Fields["name"].Required)
	assert.True(t, proc.Fields["version"].HasDefault())
	assert.False(t, proc.Fields["name"].HasDefault())

	elem := schema.TableFor("elements")
	require.NotNil(t, elem)
	require.Len(t, elem.References, 1)
	assert.Equal(t, "processes", elem.References[0].Table)

	assert.Nil(t, schema.TableFor("unknown"))
}

func TestLoadSchemaSetRejectsBadInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"not yaml", `{{{`},
		{"no tables", `version: 1`},
		{"missing name", "tables:\n  - id_field: id"},
		{"missing id_field", "tables:\n  - name: processes"},
		{"dangling reference", `
tables:
  - name: elements
    id_field: id
    references:
      - { field: process_id, table: processes }
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadSchemaSet([]byte(tc.input))
			assert.Error(t, err)
		})
	}
}

func TestFieldSpecMatches(t *testing.T) {
	assert.True(t, FieldSpec{Type: "string"}.Matches(StringValue("x")))
	assert.False(t, FieldSpec{Type: "string"}.Matches(NumberValue(1)))
	assert.True(t, FieldSpec{Type: "number"}.Matches(NumberValue(1)))
	assert.True(t, FieldSpec{Type: "map"}.Matches(MapValue(nil)))
	assert.True(t, FieldSpec{Type: "list"}.Matches(ListValue(nil)))
	// Null conforms to everything; absence of data is not a type error.
	assert.True(t, FieldSpec{Type: "string"}.Matches(Null()))
	// Untyped specs accept anything.
	assert.True(t, FieldSpec{}.Matches(BoolValue(true)))
}

func TestDefaultSchemaSet(t *testing.T) {
	schema := DefaultSchemaSet()
	assert.Equal(t, []string{"processes", "elements", "connections", "metadata"}, schema.TableNames())

	conn := schema.TableFor("connections")
	require.NotNil(t, conn)
	assert.Len(t, conn.References, 3)
}
