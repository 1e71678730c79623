package engine

import (
	"context"
	"errors"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

// ErrNotFound is returned by TargetStore.Get for an id that was never
// written.
var ErrNotFound = errors.New("record not found")

// RecordSource is a read-only iterator over the legacy store. ReadBatch must
// return records in a stable order for the same offset/limit as long as the
// source is not concurrently mutated.
type RecordSource interface {
	Tables() []string
	Count(ctx context.Context, table string) (int, error)
	ReadBatch(ctx context.Context, table string, offset, limit int) ([]models.SourceRecord, error)
}

// UpsertResult is what a target write hands back: the stored id and the
// content checksum the store computed for the written record.
type UpsertResult struct {
	ID       string
	Checksum string
}

// TargetStore is the write/read client for the destination store.
type TargetStore interface {
	Upsert(ctx context.Context, rec *models.MigratedRecord) (UpsertResult, error)
	Get(ctx context.Context, table, id string) (*models.MigratedRecord, error)
	Delete(ctx context.Context, table, id string) (bool, error)
	Exists(ctx context.Context, table, id string) (bool, error)
}

// ProgressSink receives run progress callbacks. All callbacks are invoked
// synchronously from the coordinating goroutine and are fire-and-forget: the
// engine recovers panics from sink implementations and logs them, it never
// lets a sink break the migration state machine.
type ProgressSink interface {
	OnRunStarted(cfg models.MigrationConfig)
	OnBatchCompleted(batchIndex, migrated, skipped, failed int)
	OnGapDetected(gap models.Gap)
	OnRunFinished(result *models.MigrationResult)
}
