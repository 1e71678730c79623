package models

// ConflictPolicy decides what happens when the target already holds a record
// for a source id with different content (typically a re-run after the
// source changed).
type ConflictPolicy string

const (
	// ConflictOverwrite replaces the existing target record.
	ConflictOverwrite ConflictPolicy = "overwrite"
	// ConflictSkip leaves the existing target record alone and counts the
	// source record as skipped. The divergence stays visible to the
	// post-migration scan as a VERSION_CONFLICT gap.
	ConflictSkip ConflictPolicy = "skip"
)

// MigrationConfig is the immutable configuration for one run. Construct it,
// pass it to the migrator, never mutate it afterwards.
type MigrationConfig struct {
	BatchSize             int               `json:"batch_size"`
	DryRun                bool              `json:"dry_run"`
	EnableGapDetection    bool              `json:"enable_gap_detection"`
	EnableValidation      bool              `json:"enable_validation"`
	RollbackOnFailure     bool              `json:"rollback_on_failure"`
	ContinueOnBatchError  bool              `json:"continue_on_batch_error"`
	MaxParallelBatches    int               `json:"max_parallel_batches"`
	BatchFailureThreshold int               `json:"batch_failure_threshold"`
	ConflictPolicy        ConflictPolicy    `json:"conflict_policy"`
	EscalatedChecks       []ValidationCheck `json:"escalated_checks,omitempty"`
}

// DefaultMigrationConfig returns the defaults used when a knob is not set
// explicitly: batches of 100, gap detection and validation on, sequential
// processing, zero tolerance for failed records inside a batch.
func DefaultMigrationConfig() MigrationConfig {
	return MigrationConfig{
		BatchSize:          100,
		EnableGapDetection: true,
		EnableValidation:   true,
		MaxParallelBatches: 1,
		ConflictPolicy:     ConflictOverwrite,
	}
}

// IsSignificant reports whether a failed check counts as a batch failure
// under this configuration. RECORD_COUNT and ID_MATCH always do; advisory
// checks only when escalated.
func (c MigrationConfig) IsSignificant(check ValidationCheck) bool {
	if SignificantChecks[check] {
		return true
	}
	for _, esc := range c.EscalatedChecks {
		if esc == check {
			return true
		}
	}
	return false
}
