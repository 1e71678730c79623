package models

// GapType classifies a structural discrepancy between source and target.
type GapType string

const (
	GapMissingRecord       GapType = "MISSING_RECORD"
	GapOrphanedRecord      GapType = "ORPHANED_RECORD"
	GapSchemaMismatch      GapType = "SCHEMA_MISMATCH"
	GapDataCorruption      GapType = "DATA_CORRUPTION"
	GapIntegrityViolation  GapType = "INTEGRITY_VIOLATION"
	GapIncompleteMigration GapType = "INCOMPLETE_MIGRATION"
	GapVersionConflict     GapType = "VERSION_CONFLICT"
)

// Severity grades how serious a detected gap is.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Gap is one detected discrepancy. Gaps are produced fresh on every scan and
// never mutated afterwards. They deliberately carry no timestamps so that two
// scans over identical data produce identical reports.
type Gap struct {
	Type        GapType  `json:"type"`
	Severity    Severity `json:"severity"`
	RecordIDs   []string `json:"record_ids"`
	Description string   `json:"description"`
	AutoFixable bool     `json:"auto_fixable"`
}
