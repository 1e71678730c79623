package models

import "time"

// RunState is the migrator's state machine position.
type RunState string

const (
	StateInit        RunState = "INIT"
	StateScanningPre RunState = "SCANNING_PRE"
	StateMigrating   RunState = "MIGRATING"
	StatePostScan    RunState = "POST_SCAN"
	StateCompleted   RunState = "COMPLETED"
	StateFailed      RunState = "FAILED"
	StateRolledBack  RunState = "ROLLED_BACK"
	StateCancelled   RunState = "CANCELLED"
	// StateRollbackFailed marks the one terminal condition that requires
	// manual intervention: rollback itself could not delete every journaled
	// record, so the target is inconsistent.
	StateRollbackFailed RunState = "ROLLBACK_FAILED"
)

// TableCounters tracks per-table outcomes. Every source record lands in
// exactly one of the three buckets.
type TableCounters struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// RollbackReport describes what rollback did, batch by batch in reverse
// commit order.
type RollbackReport struct {
	BatchesReverted int      `json:"batches_reverted"`
	RecordsDeleted  int      `json:"records_deleted"`
	FailedDeletes   []string `json:"failed_deletes,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// MigrationResult is the aggregate outcome of a run. It is always fully
// populated, including on FAILED/ROLLED_BACK termination, so "how far did we
// get" is always answerable.
type MigrationResult struct {
	RunID             string                    `json:"run_id"`
	Config            MigrationConfig           `json:"config"`
	State             RunState                  `json:"state"`
	StartedAt         time.Time                 `json:"started_at"`
	Duration          time.Duration             `json:"duration"`
	Tables            map[string]*TableCounters `json:"tables"`
	Total             int                       `json:"total"`
	Migrated          int                       `json:"migrated"`
	Skipped           int                       `json:"skipped"`
	Failed            int                       `json:"failed"`
	Gaps              []Gap                     `json:"gaps"`
	Validation        ValidationReport          `json:"validation"`
	GapScanIncomplete bool                      `json:"gap_scan_incomplete,omitempty"`
	Rollback          *RollbackReport           `json:"rollback,omitempty"`
	Journal           []BatchJournalEntry       `json:"journal,omitempty"`
	Error             string                    `json:"error,omitempty"`
}

// Table returns the counter block for a table, creating it on first use.
func (r *MigrationResult) Table(name string) *TableCounters {
	if r.Tables == nil {
		r.Tables = make(map[string]*TableCounters)
	}
	c, ok := r.Tables[name]
	if !ok {
		c = &TableCounters{}
		r.Tables[name] = c
	}
	return c
}

// Tally recomputes the run totals from the per-table counters.
func (r *MigrationResult) Tally() {
	r.Total, r.Migrated, r.Skipped, r.Failed = 0, 0, 0, 0
	for _, c := range r.Tables {
		r.Total += c.Total
		r.Migrated += c.Migrated
		r.Skipped += c.Skipped
		r.Failed += c.Failed
	}
}
