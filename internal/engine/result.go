package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// ExportResult serializes a finalized result to a JSON report file: the
// configuration snapshot, final state, counters, the full gap and
// validation-issue lists and the rollback report if one exists. Re-exporting
// the same result overwrites the file with the same content.
func ExportResult(result *models.MigrationResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize migration report: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write migration report to %s: %w", path, err)
	}
	return nil
}
