package models

// ValidationCheck identifies one of the per-batch validation checks.
type ValidationCheck string

const (
	CheckRecordCount       ValidationCheck = "RECORD_COUNT"
	CheckIDMatch           ValidationCheck = "ID_MATCH"
	CheckChecksumMatch     ValidationCheck = "CHECKSUM_MATCH"
	CheckJSONStructure     ValidationCheck = "JSON_STRUCTURE"
	CheckSchemaConformance ValidationCheck = "SCHEMA_CONFORMANCE"
	CheckForeignKey        ValidationCheck = "FOREIGN_KEY"
)

// CheckStatus is the outcome of a single validation check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckFail CheckStatus = "fail"
)

// ValidationIssue is the outcome of one check over one batch. Internal marks
// issues where the check itself could not run (e.g. the target fetch-back
// failed), as opposed to the check running and finding a mismatch.
type ValidationIssue struct {
	Check      ValidationCheck `json:"check"`
	Status     CheckStatus     `json:"status"`
	BatchIndex int             `json:"batch_id"`
	Detail     string          `json:"detail"`
	Internal   bool            `json:"internal,omitempty"`
}

// ValidationReport aggregates per-batch outcomes across a run.
type ValidationReport struct {
	Issues            []ValidationIssue `json:"issues"`
	IDMatched         int               `json:"ids_matched"`
	IDTotal           int               `json:"ids_total"`
	ChecksumMatched   int               `json:"checksums_matched"`
	ChecksumTotal     int               `json:"checksums_total"`
	IDMatchRate       float64           `json:"id_match_rate"`
	ChecksumMatchRate float64           `json:"checksum_match_rate"`
}

// Finalize computes the match rates from the accumulated counters. Empty
// runs report a rate of 1.0: nothing was lost.
func (r *ValidationReport) Finalize() {
	r.IDMatchRate = rate(r.IDMatched, r.IDTotal)
	r.ChecksumMatchRate = rate(r.ChecksumMatched, r.ChecksumTotal)
}

func rate(matched, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(matched) / float64(total)
}

// SignificantChecks are the checks whose failure always counts as a batch
// failure: a mismatch there means data loss, not metadata drift.
var SignificantChecks = map[ValidationCheck]bool{
	CheckRecordCount: true,
	CheckIDMatch:     true,
}
