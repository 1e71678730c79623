package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

const defaultScanBatchSize = 500

// GapDetector compares source and target snapshots and reports structural
// discrepancies as Gaps. Both scan modes are pure: they never write to
// either store. Finding a gap is the detector's normal output; only an
// unreachable source or target is an error.
type GapDetector struct {
	Source        RecordSource
	Target        TargetStore
	Schema        *models.SchemaSet
	Transformer   *Transformer
	ScanBatchSize int
}

func NewGapDetector(source RecordSource, target TargetStore, schema *models.SchemaSet) *GapDetector {
	return &GapDetector{
		Source:        source,
		Target:        target,
		Schema:        schema,
		Transformer:   NewTransformer(schema),
		ScanBatchSize: defaultScanBatchSize,
	}
}

// pendingRef is a reference observed during the source scan, resolved once
// every table's id set is complete.
type pendingRef struct {
	table    string
	recordID string
	field    string
	refTable string
	refID    string
	required bool
}

// PreScan detects issues intrinsic to the source that will cause migration
// problems: orphaned records, schema deviations and corrupt payloads. At
// most one gap of a given type is produced per record.
func (d *GapDetector) PreScan(ctx context.Context) ([]models.Gap, error) {
	var gaps []models.Gap
	ids := make(map[string]map[string]bool)
	var refs []pendingRef

	err := d.scanSource(ctx, func(rec models.SourceRecord) {
		if ids[rec.Table] == nil {
			ids[rec.Table] = make(map[string]bool)
		}
		ids[rec.Table][rec.ID] = true

		merged, corrupt := d.mergedView(rec)
		if corrupt != nil {
			gaps = append(gaps, models.Gap{
				Type:        models.GapDataCorruption,
				Severity:    models.SeverityError,
				RecordIDs:   []string{rec.ID},
				Description: fmt.Sprintf("record %s/%s: %v", rec.Table, rec.ID, corrupt),
			})
		}

		if gap := d.checkSchema(rec.Table, rec.ID, merged); gap != nil {
			gaps = append(gaps, *gap)
		}

		ts := d.Schema.TableFor(rec.Table)
		if ts == nil {
			return
		}
		for _, ref := range ts.References {
			val, ok := merged[ref.Field]
			if !ok || val.Kind == models.KindNull {
				continue
			}
			refs = append(refs, pendingRef{
				table:    rec.Table,
				recordID: rec.ID,
				field:    ref.Field,
				refTable: ref.Table,
				refID:    utils.IDString(val.ToInterface()),
				required: ref.Required,
			})
		}
	})
	if err != nil {
		return nil, &ScanError{Phase: "pre", Err: err}
	}

	gaps = append(gaps, resolveOrphans(refs, ids)...)
	return gaps, nil
}

// PostScan detects issues visible only once the target is populated: missing
// records, dangling target references, records missing their migration stamp
// and re-runs that left diverging content behind.
func (d *GapDetector) PostScan(ctx context.Context) ([]models.Gap, error) {
	var gaps []models.Gap
	var scanErr error

	err := d.scanSource(ctx, func(rec models.SourceRecord) {
		if scanErr != nil {
			return
		}

		target, err := d.Target.Get(ctx, rec.Table, rec.ID)
		if errors.Is(err, ErrNotFound) {
			gaps = append(gaps, models.Gap{
				Type:        models.GapMissingRecord,
				Severity:    models.SeverityError,
				RecordIDs:   []string{rec.ID},
				Description: fmt.Sprintf("record %s/%s exists in the source but not in the target", rec.Table, rec.ID),
			})
			return
		}
		if err != nil {
			scanErr = err
			return
		}

		if target.MigratedFrom == "" || target.MigrationTimestamp.IsZero() {
			gaps = append(gaps, models.Gap{
				Type:        models.GapIncompleteMigration,
				Severity:    models.SeverityWarning,
				RecordIDs:   []string{rec.ID},
				Description: fmt.Sprintf("record %s/%s is missing its migration stamp", rec.Table, rec.ID),
				AutoFixable: true,
			})
		}

		if gap := d.checkVersionConflict(rec, target); gap != nil {
			gaps = append(gaps, *gap)
		}

		if gap, err := d.checkTargetReferences(ctx, rec.Table, rec.ID, target); err != nil {
			scanErr = err
		} else if gap != nil {
			gaps = append(gaps, *gap)
		}
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		return nil, &ScanError{Phase: "post", Err: err}
	}

	return gaps, nil
}

// scanSource walks every declared table to completion, in schema order.
func (d *GapDetector) scanSource(ctx context.Context, visit func(models.SourceRecord)) error {
	batchSize := d.ScanBatchSize
	if batchSize <= 0 {
		batchSize = defaultScanBatchSize
	}

	for _, table := range d.Source.Tables() {
		offset := 0
		for {
			batch, err := d.Source.ReadBatch(ctx, table, offset, batchSize)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				break
			}
			for _, rec := range batch {
				visit(rec)
			}
			offset += len(batch)
		}
	}
	return nil
}

// mergedView is the record as the transformer will see it: payload lifted and
// merged under flat columns. A corrupt payload falls back to the flat columns
// alone and reports the parse error.
func (d *GapDetector) mergedView(rec models.SourceRecord) (map[string]models.Value, error) {
	payload, err := d.Transformer.ParsePayload(rec)
	ts := d.Schema.TableFor(rec.Table)

	flat := make(map[string]models.Value, len(rec.Fields))
	for k, v := range rec.Fields {
		if ts != nil && k == ts.PayloadColumn {
			continue
		}
		flat[k] = v
	}
	if err != nil {
		return flat, err
	}
	return models.MergeFields(flat, payload), nil
}

// schemaDeviations lists how a record's fields deviate from the declared
// table schema. The same rules drive the pre-scan's SCHEMA_MISMATCH gaps and
// the validator's SCHEMA_CONFORMANCE check, so the two never disagree.
func schemaDeviations(ts *models.TableSchema, fields map[string]models.Value) (deviations []string, fixable bool) {
	fixable = true
	names := make([]string, 0, len(ts.Fields))
	for name := range ts.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := ts.Fields[name]
		val, present := fields[name]
		if !present || val.Kind == models.KindNull {
			if spec.Required {
				deviations = append(deviations, fmt.Sprintf("missing required field %s", name))
				if !spec.HasDefault() {
					fixable = false
				}
			}
			continue
		}
		if !spec.Matches(val) {
			deviations = append(deviations, fmt.Sprintf("field %s should be %s", name, spec.Type))
			fixable = false
		}
	}
	return deviations, fixable
}

// checkSchema reports a single SCHEMA_MISMATCH gap covering every deviation
// of one record from its declared table schema.
func (d *GapDetector) checkSchema(table, id string, merged map[string]models.Value) *models.Gap {
	ts := d.Schema.TableFor(table)
	if ts == nil {
		return nil
	}

	deviations, fixable := schemaDeviations(ts, merged)
	if len(deviations) == 0 {
		return nil
	}
	return &models.Gap{
		Type:        models.GapSchemaMismatch,
		Severity:    models.SeverityWarning,
		RecordIDs:   []string{id},
		Description: fmt.Sprintf("record %s/%s: %s", table, id, strings.Join(deviations, "; ")),
		AutoFixable: fixable,
	}
}

// checkVersionConflict flags a target record whose stored content diverges
// from what migrating the current source record would produce, or that has
// been overwritten with changed content by an earlier re-run.
func (d *GapDetector) checkVersionConflict(rec models.SourceRecord, target *models.MigratedRecord) *models.Gap {
	transformed, err := d.Transformer.Transform(rec, target.MigrationTimestamp)
	if err != nil {
		// Corrupt source payload; the pre-scan owns that report.
		return nil
	}
	if target.Checksum == transformed.Checksum && target.Version <= 1 {
		return nil
	}
	if target.Checksum != transformed.Checksum {
		return &models.Gap{
			Type:      models.GapVersionConflict,
			Severity:  models.SeverityWarning,
			RecordIDs: []string{rec.ID},
			Description: fmt.Sprintf("record %s/%s: target checksum %.12s does not match source content %.12s",
				rec.Table, rec.ID, target.Checksum, transformed.Checksum),
		}
	}
	return &models.Gap{
		Type:      models.GapVersionConflict,
		Severity:  models.SeverityWarning,
		RecordIDs: []string{rec.ID},
		Description: fmt.Sprintf("record %s/%s was migrated %d times with differing content",
			rec.Table, rec.ID, target.Version),
	}
}

// checkTargetReferences verifies that every declared reference of a target
// record resolves to an existing target record.
func (d *GapDetector) checkTargetReferences(ctx context.Context, table, id string, target *models.MigratedRecord) (*models.Gap, error) {
	ts := d.Schema.TableFor(table)
	if ts == nil {
		return nil, nil
	}

	var dangling []string
	for _, ref := range ts.References {
		val, ok := target.Fields[ref.Field]
		if !ok || val.Kind == models.KindNull {
			continue
		}
		refID := utils.IDString(val.ToInterface())
		exists, err := d.Target.Exists(ctx, ref.Table, refID)
		if err != nil {
			return nil, err
		}
		if !exists {
			dangling = append(dangling, fmt.Sprintf("%s=%s", ref.Field, refID))
		}
	}

	if len(dangling) == 0 {
		return nil, nil
	}
	return &models.Gap{
		Type:        models.GapIntegrityViolation,
		Severity:    models.SeverityError,
		RecordIDs:   []string{id},
		Description: fmt.Sprintf("record %s/%s references nonexistent target records: %s", table, id, strings.Join(dangling, ", ")),
	}, nil
}

// resolveOrphans turns references whose parent id never appeared in the
// source into ORPHANED_RECORD gaps, one gap per record.
func resolveOrphans(refs []pendingRef, ids map[string]map[string]bool) []models.Gap {
	type orphanKey struct{ table, id string }
	dangling := make(map[orphanKey][]pendingRef)
	var order []orphanKey

	for _, ref := range refs {
		if ids[ref.refTable][ref.refID] {
			continue
		}
		key := orphanKey{ref.table, ref.recordID}
		if _, seen := dangling[key]; !seen {
			order = append(order, key)
		}
		dangling[key] = append(dangling[key], ref)
	}

	gaps := make([]models.Gap, 0, len(order))
	for _, key := range order {
		severity := models.SeverityWarning
		var details []string
		for _, ref := range dangling[key] {
			if ref.required {
				severity = models.SeverityError
			}
			details = append(details, fmt.Sprintf("%s=%s (%s)", ref.field, ref.refID, ref.refTable))
		}
		gaps = append(gaps, models.Gap{
			Type:        models.GapOrphanedRecord,
			Severity:    severity,
			RecordIDs:   []string{key.id},
			Description: fmt.Sprintf("record %s/%s references parents absent from the source: %s", key.table, key.id, strings.Join(details, ", ")),
		})
	}
	return gaps
}
