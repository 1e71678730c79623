package config

import (
	"fmt"
	"os"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// LoadSchema reads and parses the table-schema YAML file from the given
// path. An empty path falls back to the built-in process-diagram schema.
func LoadSchema(filePath string) (*models.SchemaSet, error) {
	if filePath == "" {
		return models.DefaultSchemaSet(), nil
	}

	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file '%s': %w", filePath, err)
	}

	schema, err := models.LoadSchemaSet(bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema file '%s': %w", filePath, err)
	}

	return schema, nil
}
