package engine

import (
	"time"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// BatchJournal is the append-only record of committed batches. It is owned
// exclusively by the migrator: appended from the coordinating goroutine in
// commit order, read only by rollback, discarded when the run completes.
type BatchJournal struct {
	entries []models.BatchJournalEntry
}

func NewBatchJournal() *BatchJournal {
	return &BatchJournal{}
}

// Append records a committed batch and the ids it wrote.
func (j *BatchJournal) Append(batchIndex int, table string, recordIDs []string) {
	ids := make([]string, len(recordIDs))
	copy(ids, recordIDs)
	j.entries = append(j.entries, models.BatchJournalEntry{
		BatchIndex:  batchIndex,
		Table:       table,
		RecordIDs:   ids,
		CommittedAt: time.Now().UTC(),
	})
}

// Entries returns the journal in commit order.
func (j *BatchJournal) Entries() []models.BatchJournalEntry {
	return j.entries
}

// Len reports the number of journaled batches.
func (j *BatchJournal) Len() int {
	return len(j.entries)
}
