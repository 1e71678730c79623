package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

// DataValidator confirms, batch by batch, that what was written to the
// target matches what was read from the source. Each of the six checks is
// independent and contributes at most one issue per batch; metadata fields
// the target legitimately adds are filtered out before content comparison.
type DataValidator struct {
	Target TargetStore
	Schema *models.SchemaSet

	report models.ValidationReport
}

func NewDataValidator(target TargetStore, schema *models.SchemaSet) *DataValidator {
	return &DataValidator{Target: target, Schema: schema}
}

// Report finalizes and returns the accumulated validation report.
func (v *DataValidator) Report() models.ValidationReport {
	v.report.Finalize()
	return v.report
}

// ValidateBatch fetches the just-written records back from the target and
// runs the six checks against the batch the engine holds in memory. The
// returned issues are also accumulated into the run report.
func (v *DataValidator) ValidateBatch(ctx context.Context, batchIndex int, written []*models.MigratedRecord) []models.ValidationIssue {
	var issues []models.ValidationIssue
	addFail := func(check models.ValidationCheck, detail string) {
		issues = append(issues, models.ValidationIssue{
			Check:      check,
			Status:     models.CheckFail,
			BatchIndex: batchIndex,
			Detail:     detail,
		})
	}

	fetched := make(map[string]*models.MigratedRecord, len(written))
	var missing []string
	for _, rec := range written {
		got, err := v.Target.Get(ctx, rec.Table, rec.ID)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, rec.ID)
			continue
		}
		if err != nil {
			// The checks themselves could not run. Never silently dropped:
			// recorded as a failed internal issue against the significant
			// RECORD_COUNT check so the batch cannot pass by accident.
			verr := &ValidationError{Check: string(models.CheckRecordCount), Err: err}
			issues = append(issues, models.ValidationIssue{
				Check:      models.CheckRecordCount,
				Status:     models.CheckFail,
				BatchIndex: batchIndex,
				Detail:     fmt.Sprintf("internal error: %v", verr),
				Internal:   true,
			})
			v.report.Issues = append(v.report.Issues, issues...)
			return issues
		}
		fetched[rec.ID] = got
	}

	// 1. RECORD_COUNT
	if len(fetched) != len(written) {
		addFail(models.CheckRecordCount, fmt.Sprintf("wrote %d records, target holds %d", len(written), len(fetched)))
	}

	// 2. ID_MATCH
	v.report.IDTotal += len(written)
	v.report.IDMatched += len(fetched)
	if len(missing) > 0 {
		addFail(models.CheckIDMatch, fmt.Sprintf("ids absent from target: %s", strings.Join(missing, ", ")))
	}

	// 3. CHECKSUM_MATCH
	var checksumMismatches []string
	for _, rec := range written {
		got, ok := fetched[rec.ID]
		if !ok {
			continue
		}
		v.report.ChecksumTotal++
		if utils.Checksum(rec.Fields) == utils.Checksum(got.Fields) {
			v.report.ChecksumMatched++
		} else {
			checksumMismatches = append(checksumMismatches, rec.ID)
		}
	}
	if len(checksumMismatches) > 0 {
		addFail(models.CheckChecksumMatch, fmt.Sprintf("content checksums diverge for: %s", strings.Join(checksumMismatches, ", ")))
	}

	// 4. JSON_STRUCTURE
	var shapeMismatches []string
	for _, rec := range written {
		got, ok := fetched[rec.ID]
		if !ok {
			continue
		}
		if !sameStructure(utils.ContentFields(rec.Fields), utils.ContentFields(got.Fields)) {
			shapeMismatches = append(shapeMismatches, rec.ID)
		}
	}
	if len(shapeMismatches) > 0 {
		addFail(models.CheckJSONStructure, fmt.Sprintf("nested structure diverges for: %s", strings.Join(shapeMismatches, ", ")))
	}

	// 5. SCHEMA_CONFORMANCE
	var nonconforming []string
	for _, rec := range written {
		got, ok := fetched[rec.ID]
		if !ok {
			continue
		}
		ts := v.Schema.TableFor(rec.Table)
		if ts == nil {
			continue
		}
		if deviations, _ := schemaDeviations(ts, got.Fields); len(deviations) > 0 {
			nonconforming = append(nonconforming, fmt.Sprintf("%s (%s)", rec.ID, strings.Join(deviations, "; ")))
		}
	}
	if len(nonconforming) > 0 {
		addFail(models.CheckSchemaConformance, fmt.Sprintf("records violate the table schema: %s", strings.Join(nonconforming, ", ")))
	}

	// 6. FOREIGN_KEY
	var danglingRefs []string
	batchIDs := make(map[string]bool, len(written))
	for _, rec := range written {
		batchIDs[memKey(rec.Table, rec.ID)] = true
	}
	for _, rec := range written {
		got, ok := fetched[rec.ID]
		if !ok {
			continue
		}
		ts := v.Schema.TableFor(rec.Table)
		if ts == nil {
			continue
		}
		for _, ref := range ts.References {
			val, present := got.Fields[ref.Field]
			if !present || val.Kind == models.KindNull {
				continue
			}
			refID := utils.IDString(val.ToInterface())
			if batchIDs[memKey(ref.Table, refID)] {
				continue
			}
			exists, err := v.Target.Exists(ctx, ref.Table, refID)
			if err != nil {
				verr := &ValidationError{Check: string(models.CheckForeignKey), Err: err}
				issues = append(issues, models.ValidationIssue{
					Check:      models.CheckForeignKey,
					Status:     models.CheckFail,
					BatchIndex: batchIndex,
					Detail:     fmt.Sprintf("internal error: %v", verr),
					Internal:   true,
				})
				v.report.Issues = append(v.report.Issues, issues...)
				return issues
			}
			if !exists {
				danglingRefs = append(danglingRefs, fmt.Sprintf("%s.%s=%s", rec.ID, ref.Field, refID))
			}
		}
	}
	if len(danglingRefs) > 0 {
		addFail(models.CheckForeignKey, fmt.Sprintf("unresolved references: %s", strings.Join(danglingRefs, ", ")))
	}

	v.report.Issues = append(v.report.Issues, issues...)
	return issues
}

// sameStructure compares key sets and value kinds recursively, ignoring the
// actual scalar values.
func sameStructure(a, b map[string]models.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !sameShape(av, bv) {
			return false
		}
	}
	return true
}

func sameShape(a, b models.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case models.KindMap:
		return sameStructure(a.Map, b.Map)
	case models.KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !sameShape(a.List[i], b.List[i]) {
				return false
			}
		}
	}
	return true
}
