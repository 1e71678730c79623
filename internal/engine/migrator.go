package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/BartekS5/flowmigrate/pkg/logger"
	"github.com/BartekS5/flowmigrate/pkg/models"
)

// BatchMigrator drives the end-to-end run: pre-scan, the batch loop with
// journaling and validation, rollback on failure, post-scan and result
// assembly. One migrator runs one migration; construct a new one per run.
type BatchMigrator struct {
	Source RecordSource
	Target TargetStore
	Schema *models.SchemaSet
	Config models.MigrationConfig
	Sinks  []ProgressSink

	transformer *Transformer
	validator   *DataValidator
	journal     *BatchJournal
	result      *models.MigrationResult

	// store is where batch writes actually go: the real target, or a
	// shadow MemoryTargetStore on dry runs.
	store  TargetStore
	shadow *MemoryTargetStore
}

func NewBatchMigrator(source RecordSource, target TargetStore, schema *models.SchemaSet, cfg models.MigrationConfig, sinks ...ProgressSink) *BatchMigrator {
	return &BatchMigrator{
		Source:      source,
		Target:      target,
		Schema:      schema,
		Config:      cfg,
		Sinks:       sinks,
		transformer: NewTransformer(schema),
		journal:     NewBatchJournal(),
	}
}

// Run executes the migration and always returns a populated result, even on
// failure: partial progress is never silently lost.
func (m *BatchMigrator) Run(ctx context.Context) (*models.MigrationResult, error) {
	if err := m.validateConfig(); err != nil {
		return nil, err
	}

	started := time.Now()
	m.result = &models.MigrationResult{
		RunID:     uuid.NewString(),
		Config:    m.Config,
		State:     models.StateInit,
		StartedAt: started.UTC(),
	}

	m.store = m.Target
	if m.Config.DryRun {
		m.shadow = NewMemoryTargetStore()
		m.store = m.shadow
	}
	m.validator = NewDataValidator(m.store, m.Schema)
	detector := NewGapDetector(m.Source, m.store, m.Schema)

	m.notify(func(s ProgressSink) { s.OnRunStarted(m.Config) })

	runErr := m.execute(ctx, detector)

	m.result.Duration = time.Since(started)
	m.result.Validation = m.validator.Report()
	m.result.Journal = m.journal.Entries()
	m.result.Tally()
	if runErr != nil {
		m.result.Error = runErr.Error()
	}

	m.notify(func(s ProgressSink) { s.OnRunFinished(m.result) })
	return m.result, runErr
}

func (m *BatchMigrator) validateConfig() error {
	if m.Config.BatchSize <= 0 {
		return &ConfigError{Message: fmt.Sprintf("batch_size must be positive, got %d", m.Config.BatchSize)}
	}
	if m.Config.MaxParallelBatches < 0 {
		return &ConfigError{Message: fmt.Sprintf("max_parallel_batches must be >= 1, got %d", m.Config.MaxParallelBatches)}
	}
	if m.Config.MaxParallelBatches == 0 {
		m.Config.MaxParallelBatches = 1
	}
	if m.Config.BatchFailureThreshold < 0 {
		return &ConfigError{Message: "batch_failure_threshold must not be negative"}
	}
	switch m.Config.ConflictPolicy {
	case "":
		m.Config.ConflictPolicy = models.ConflictOverwrite
	case models.ConflictOverwrite, models.ConflictSkip:
	default:
		return &ConfigError{Message: fmt.Sprintf("unknown conflict_policy %q", m.Config.ConflictPolicy)}
	}
	return nil
}

func (m *BatchMigrator) execute(ctx context.Context, detector *GapDetector) error {
	// Pre-migration scan. A scan failure here aborts before any batch work.
	if m.Config.EnableGapDetection {
		m.result.State = models.StateScanningPre
		gaps, err := detector.PreScan(ctx)
		if err != nil {
			m.result.State = models.StateFailed
			return err
		}
		m.recordGaps(gaps)
	}

	m.result.State = models.StateMigrating

	// Count everything up front so the run invariant can be enforced even
	// when the loop stops early.
	totals := make(map[string]int)
	for _, table := range m.Source.Tables() {
		count, err := m.Source.Count(ctx, table)
		if err != nil {
			m.result.State = models.StateFailed
			return fmt.Errorf("failed to count source table %s: %w", table, err)
		}
		totals[table] = count
		m.result.Table(table).Total = count
	}

	batchIndex := 0

	for _, table := range m.Source.Tables() {
		halt, err := m.migrateTable(ctx, table, &batchIndex)
		if halt || err != nil {
			return err
		}
	}

	// Post-migration scan. Migration already happened, so a scan failure
	// only downgrades the result to "gap scan incomplete".
	if m.Config.EnableGapDetection {
		m.result.State = models.StatePostScan
		gaps, err := detector.PostScan(ctx)
		if err != nil {
			logger.Errorf("Post-migration gap scan failed: %v", err)
			m.result.GapScanIncomplete = true
		} else {
			m.recordGaps(gaps)
		}
	}

	m.result.State = models.StateCompleted
	return nil
}

// migrateTable drains one table's batches. A true halt flag means the run
// reached a terminal state and the caller must stop with the returned error
// as-is. The stream context is cancelled on every exit path, so an aborted
// run releases its prefetch goroutine instead of leaking it.
func (m *BatchMigrator) migrateTable(ctx context.Context, table string, batchIndex *int) (bool, error) {
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	next := m.batchStream(streamCtx, table)

	for {
		// Cancellation is honored at batch boundaries only; an in-flight
		// batch always finishes and journals first.
		if ctx.Err() != nil {
			m.markUnprocessedSkipped()
			m.result.State = models.StateCancelled
			return true, nil
		}

		batch, err := next()
		if err != nil {
			m.markUnprocessedSkipped()
			m.result.State = models.StateFailed
			return true, fmt.Errorf("failed to read batch from %s: %w", table, err)
		}
		if len(batch) == 0 {
			return false, nil
		}

		batchFailed := m.processBatch(ctx, *batchIndex, table, batch)
		*batchIndex++

		if batchFailed {
			if m.Config.RollbackOnFailure {
				return true, m.rollback(ctx)
			}
			if !m.Config.ContinueOnBatchError {
				m.markUnprocessedSkipped()
				m.result.State = models.StateFailed
				return true, fmt.Errorf("batch %d of table %s failed", *batchIndex-1, table)
			}
		}
	}
}

// batchStream returns a pull function over a table's batches. With
// MaxParallelBatches of 1 reads happen inline; above that a prefetch
// goroutine reads ahead so the write+validate phase of one batch overlaps
// the read of the next, bounded by the channel buffer.
func (m *BatchMigrator) batchStream(ctx context.Context, table string) func() ([]models.SourceRecord, error) {
	if m.Config.MaxParallelBatches <= 1 {
		offset := 0
		return func() ([]models.SourceRecord, error) {
			batch, err := m.Source.ReadBatch(ctx, table, offset, m.Config.BatchSize)
			offset += len(batch)
			return batch, err
		}
	}

	type readResult struct {
		batch []models.SourceRecord
		err   error
	}
	ch := make(chan readResult, m.Config.MaxParallelBatches-1)

	go func() {
		defer close(ch)
		offset := 0
		for {
			batch, err := m.Source.ReadBatch(ctx, table, offset, m.Config.BatchSize)
			select {
			case ch <- readResult{batch: batch, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil || len(batch) == 0 {
				return
			}
			offset += len(batch)
		}
	}()

	return func() ([]models.SourceRecord, error) {
		res, ok := <-ch
		if !ok {
			return nil, nil
		}
		return res.batch, res.err
	}
}

// processBatch transforms and writes one batch, validates it, journals it
// and reports progress. It returns whether the batch counts as failed under
// the failure threshold and validation significance rules.
func (m *BatchMigrator) processBatch(ctx context.Context, batchIndex int, table string, batch []models.SourceRecord) bool {
	counters := m.result.Table(table)
	now := time.Now()

	var written []*models.MigratedRecord
	var writtenIDs []string
	failedInBatch := 0

	for _, rec := range batch {
		transformed, err := m.transformer.Transform(rec, now)
		if err != nil {
			logger.Errorf("Skipping record %s/%s: transform failed: %v", rec.Table, rec.ID, err)
			counters.Failed++
			failedInBatch++
			continue
		}

		skip, err := m.conflictSkip(ctx, transformed)
		if err != nil {
			werr := &BatchWriteError{Table: rec.Table, RecordID: rec.ID, Err: err}
			logger.Errorf("%v", werr)
			counters.Failed++
			failedInBatch++
			continue
		}
		if skip {
			logger.Debugf("Skipping record %s/%s: target holds conflicting content", rec.Table, rec.ID)
			counters.Skipped++
			continue
		}

		if _, err := m.store.Upsert(ctx, transformed); err != nil {
			werr := &BatchWriteError{Table: rec.Table, RecordID: rec.ID, Err: err}
			logger.Errorf("%v", werr)
			counters.Failed++
			failedInBatch++
			continue
		}
		counters.Migrated++
		written = append(written, transformed)
		writtenIDs = append(writtenIDs, transformed.ID)
	}

	batchFailed := failedInBatch > m.Config.BatchFailureThreshold

	if m.Config.EnableValidation && len(written) > 0 {
		issues := m.validator.ValidateBatch(ctx, batchIndex, written)
		for _, issue := range issues {
			if issue.Status == models.CheckFail && m.Config.IsSignificant(issue.Check) {
				batchFailed = true
			}
		}
	}

	// The journal entry is appended only after validation finished, keeping
	// a total order on the journal. Partially failed batches are journaled
	// too: their written records must be revertible.
	if len(writtenIDs) > 0 {
		m.journal.Append(batchIndex, table, writtenIDs)
	}

	m.result.Tally()
	m.notify(func(s ProgressSink) {
		s.OnBatchCompleted(batchIndex, m.result.Migrated, m.result.Skipped, m.result.Failed)
	})

	return batchFailed
}

// conflictSkip decides whether a record must be skipped under the skip
// conflict policy: the target already holds the id with different content.
// On dry runs the existing target record is copied into the shadow store so
// the post-scan sees what a real skip would leave behind.
func (m *BatchMigrator) conflictSkip(ctx context.Context, rec *models.MigratedRecord) (bool, error) {
	if m.Config.ConflictPolicy != models.ConflictSkip {
		return false, nil
	}

	existing, err := m.Target.Get(ctx, rec.Table, rec.ID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if existing.Checksum == rec.Checksum {
		return false, nil
	}

	if m.shadow != nil {
		m.shadow.Seed(existing)
	}
	return true, nil
}

// rollback reverts every journaled batch in reverse commit order by deleting
// the journaled record ids from the target.
func (m *BatchMigrator) rollback(ctx context.Context) error {
	report := &models.RollbackReport{}
	m.result.Rollback = report

	var errs *multierror.Error
	entries := m.journal.Entries()
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		for j := len(entry.RecordIDs) - 1; j >= 0; j-- {
			id := entry.RecordIDs[j]
			if _, err := m.store.Delete(ctx, entry.Table, id); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("batch %d, record %s/%s: %w", entry.BatchIndex, entry.Table, id, err))
				report.FailedDeletes = append(report.FailedDeletes, id)
				continue
			}
			report.RecordsDeleted++
		}
		report.BatchesReverted++
	}

	m.markUnprocessedSkipped()

	if err := errs.ErrorOrNil(); err != nil {
		rerr := &RollbackError{Err: err}
		report.Error = rerr.Error()
		m.result.State = models.StateRollbackFailed
		return rerr
	}

	m.result.State = models.StateRolledBack
	return nil
}

// markUnprocessedSkipped folds records the run never reached into the
// skipped bucket so that migrated+skipped+failed == total holds at every
// terminal state.
func (m *BatchMigrator) markUnprocessedSkipped() {
	for _, counters := range m.result.Tables {
		unprocessed := counters.Total - counters.Migrated - counters.Skipped - counters.Failed
		if unprocessed > 0 {
			counters.Skipped += unprocessed
		}
	}
}

func (m *BatchMigrator) recordGaps(gaps []models.Gap) {
	for _, gap := range gaps {
		m.result.Gaps = append(m.result.Gaps, gap)
		g := gap
		m.notify(func(s ProgressSink) { s.OnGapDetected(g) })
	}
}

// notify delivers a callback to every sink, recovering panics so a broken
// sink can never derail the state machine.
func (m *BatchMigrator) notify(fn func(ProgressSink)) {
	for _, sink := range m.Sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Progress sink panicked: %v", r)
				}
			}()
			fn(sink)
		}()
	}
}
