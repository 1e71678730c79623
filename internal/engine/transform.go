package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

// Transformer turns source rows into target documents: it lifts the nested
// JSON payload into real fields, merges it with the flat columns (flat wins),
// fills declared defaults for absent fields and stamps the migration
// bookkeeping.
type Transformer struct {
	Schema *models.SchemaSet
}

func NewTransformer(schema *models.SchemaSet) *Transformer {
	return &Transformer{Schema: schema}
}

// ParsePayload extracts and parses the table's payload column, if the schema
// declares one and the record carries it. A payload that is not valid JSON
// is data corruption; the same parse is used by the pre-migration scan.
func (t *Transformer) ParsePayload(rec models.SourceRecord) (map[string]models.Value, error) {
	ts := t.Schema.TableFor(rec.Table)
	if ts == nil || ts.PayloadColumn == "" {
		return nil, nil
	}
	raw, ok := rec.Fields[ts.PayloadColumn]
	if !ok || raw.Kind == models.KindNull {
		return nil, nil
	}

	switch raw.Kind {
	case models.KindMap:
		// Already structured (e.g. read back from the document store).
		return raw.Map, nil
	case models.KindString:
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(raw.Str), &decoded); err != nil {
			return nil, fmt.Errorf("payload column %s of %s/%s is not valid JSON: %w",
				ts.PayloadColumn, rec.Table, rec.ID, err)
		}
		return models.FieldsFromInterface(decoded), nil
	default:
		return nil, fmt.Errorf("payload column %s of %s/%s holds a %v, expected JSON text or a map",
			ts.PayloadColumn, rec.Table, rec.ID, raw.Kind)
	}
}

// Transform builds the MigratedRecord for a source record. The output is
// deterministic for a given source record and schema; only the stamped
// timestamp varies between runs, and that field is excluded from checksums.
func (t *Transformer) Transform(rec models.SourceRecord, now time.Time) (*models.MigratedRecord, error) {
	payload, err := t.ParsePayload(rec)
	if err != nil {
		return nil, err
	}

	flat := make(map[string]models.Value, len(rec.Fields))
	ts := t.Schema.TableFor(rec.Table)
	for k, v := range rec.Fields {
		if ts != nil && k == ts.PayloadColumn {
			continue
		}
		flat[k] = v
	}

	fields := models.MergeFields(flat, payload)

	if ts != nil {
		for name, spec := range ts.Fields {
			if _, present := fields[name]; !present && spec.HasDefault() {
				fields[name] = models.FromInterface(spec.Default)
			}
		}
	}

	return &models.MigratedRecord{
		Table:              rec.Table,
		ID:                 rec.ID,
		Fields:             fields,
		MigratedFrom:       rec.Table,
		MigrationTimestamp: now.UTC(),
		Checksum:           utils.Checksum(fields),
	}, nil
}
