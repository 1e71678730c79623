package engine

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

type recordingSink struct {
	started  int
	batches  int
	gaps     []models.Gap
	finished *models.MigrationResult

	onBatch func(batchIndex int)
}

func (s *recordingSink) OnRunStarted(cfg models.MigrationConfig) { s.started++ }
func (s *recordingSink) OnBatchCompleted(batchIndex, migrated, skipped, failed int) {
	s.batches++
	if s.onBatch != nil {
		s.onBatch(batchIndex)
	}
}
func (s *recordingSink) OnGapDetected(gap models.Gap)            { s.gaps = append(s.gaps, gap) }
func (s *recordingSink) OnRunFinished(r *models.MigrationResult) { s.finished = r }

type panickySink struct{}

func (panickySink) OnRunStarted(models.MigrationConfig)   { panic("boom") }
func (panickySink) OnBatchCompleted(int, int, int, int)   { panic("boom") }
func (panickySink) OnGapDetected(models.Gap)              { panic("boom") }
func (panickySink) OnRunFinished(*models.MigrationResult) { panic("boom") }

func testConfig() models.MigrationConfig {
	cfg := models.DefaultMigrationConfig()
	cfg.BatchSize = 2
	return cfg
}

// processSource builds a source of n conforming process records p1..pn.
func processSource(n int) *MemoryRecordSource {
	source := NewMemoryRecordSource("processes")
	names := "ABCDEFGHIJ"
	for i := 0; i < n; i++ {
		id := "p" + string(rune('1'+i))
		source.Add(sourceRecord("processes", id, map[string]interface{}{"name": string(names[i%len(names)])}))
	}
	return source
}

func assertCounterInvariant(t *testing.T, result *models.MigrationResult) {
	t.Helper()
	assert.Equal(t, result.Total, result.Migrated+result.Skipped+result.Failed,
		"every source record must land in exactly one bucket")
	for table, c := range result.Tables {
		assert.Equalf(t, c.Total, c.Migrated+c.Skipped+c.Failed, "table %s", table)
	}
}

func TestRunMigratesEverything(t *testing.T) {
	source := NewMemoryRecordSource("processes", "elements")
	source.Add(sourceRecord("processes", "p1", map[string]interface{}{"name": "A", "data": `{"note":"x"}`}))
	source.Add(sourceRecord("processes", "p2", map[string]interface{}{"name": "B"}))
	source.Add(sourceRecord("processes", "p3", map[string]interface{}{"name": "C"}))
	source.Add(sourceRecord("elements", "e1", map[string]interface{}{"element_type": "task", "process_id": "p1"}))
	source.Add(sourceRecord("elements", "e2", map[string]interface{}{"element_type": "gateway", "process_id": "p2"}))

	target := NewMemoryTargetStore()
	sink := &recordingSink{}
	m := NewBatchMigrator(source, target, testSchema(), testConfig(), sink)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Migrated)
	assert.Zero(t, result.Skipped)
	assert.Zero(t, result.Failed)
	assertCounterInvariant(t, result)

	assert.Empty(t, result.Gaps)
	assert.Equal(t, 1.0, result.Validation.IDMatchRate)
	assert.Equal(t, 1.0, result.Validation.ChecksumMatchRate)
	assert.Equal(t, 5, target.Len())

	// Batches of 2: processes [p1 p2][p3], elements [e1 e2].
	require.Len(t, result.Journal, 3)
	assert.Equal(t, []string{"p1", "p2"}, result.Journal[0].RecordIDs)
	assert.Equal(t, "elements", result.Journal[2].Table)

	assert.Equal(t, 1, sink.started)
	assert.Equal(t, 3, sink.batches)
	require.NotNil(t, sink.finished)
	assert.Equal(t, result.RunID, sink.finished.RunID)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.MigrationConfig)
	}{
		{"zero batch size", func(c *models.MigrationConfig) { c.BatchSize = 0 }},
		{"negative parallelism", func(c *models.MigrationConfig) { c.MaxParallelBatches = -1 }},
		{"negative threshold", func(c *models.MigrationConfig) { c.BatchFailureThreshold = -1 }},
		{"unknown conflict policy", func(c *models.MigrationConfig) { c.ConflictPolicy = "merge" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			m := NewBatchMigrator(processSource(1), NewMemoryTargetStore(), testSchema(), cfg)

			result, err := m.Run(context.Background())
			assert.Nil(t, result)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestRunFailsFastOnBatchFailure(t *testing.T) {
	source := processSource(4)
	target := NewMemoryTargetStore()
	target.FailUpserts["processes/p2"] = true

	m := NewBatchMigrator(source, target, testSchema(), testConfig())
	result, err := m.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, models.StateFailed, result.State)
	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped, "records the run never reached count as skipped")
	assertCounterInvariant(t, result)
	assert.NotEmpty(t, result.Error)
}

func TestRunContinueOnBatchError(t *testing.T) {
	source := processSource(4)
	target := NewMemoryTargetStore()
	target.FailUpserts["processes/p2"] = true

	cfg := testConfig()
	cfg.ContinueOnBatchError = true
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, 3, result.Migrated)
	assert.Equal(t, 1, result.Failed)
	assertCounterInvariant(t, result)

	// The post-migration scan reports the record the failed write left behind.
	missing := gapsOfType(result.Gaps, models.GapMissingRecord)
	require.Len(t, missing, 1)
	assert.Equal(t, []string{"p2"}, missing[0].RecordIDs)
}

func TestRunRollbackOnFailure(t *testing.T) {
	source := processSource(5)
	target := NewMemoryTargetStore()
	target.FailUpserts["processes/p5"] = true

	cfg := testConfig()
	cfg.RollbackOnFailure = true
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateRolledBack, result.State)
	// Counters keep the pre-rollback outcome; the rollback report records
	// the reversal.
	assert.Equal(t, 4, result.Migrated)
	assert.Equal(t, 1, result.Failed)
	assertCounterInvariant(t, result)

	require.NotNil(t, result.Rollback)
	assert.Equal(t, 2, result.Rollback.BatchesReverted)
	assert.Equal(t, 4, result.Rollback.RecordsDeleted)
	assert.Empty(t, result.Rollback.FailedDeletes)
	assert.Zero(t, target.Len(), "rollback must leave the target empty")
}

func TestRunRollbackFailureIsTerminal(t *testing.T) {
	source := processSource(3)
	target := NewMemoryTargetStore()
	target.FailUpserts["processes/p3"] = true
	target.FailDeletes["processes/p1"] = true

	cfg := testConfig()
	cfg.RollbackOnFailure = true
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())

	var rerr *RollbackError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, models.StateRollbackFailed, result.State)
	require.NotNil(t, result.Rollback)
	assert.Equal(t, []string{"p1"}, result.Rollback.FailedDeletes)
	assert.Equal(t, 1, result.Rollback.RecordsDeleted)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	source := processSource(3)
	target := NewMemoryTargetStore()

	cfg := testConfig()
	cfg.DryRun = true
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, 3, result.Migrated)
	assert.Zero(t, target.Len(), "dry run must not touch the target")
	// Validation and the post-scan still ran, against the shadow writes.
	assert.Equal(t, 1.0, result.Validation.IDMatchRate)
	assert.Empty(t, result.Gaps)
}

func TestRunDryRunIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true

	run := func() *models.MigrationResult {
		source := NewMemoryRecordSource("processes", "elements")
		source.Add(sourceRecord("processes", "p1", map[string]interface{}{"name": "A"}))
		source.Add(sourceRecord("elements", "e1", map[string]interface{}{"element_type": "task", "process_id": "p9"}))
		m := NewBatchMigrator(source, NewMemoryTargetStore(), testSchema(), cfg)
		result, err := m.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	first, second := run(), run()
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.Gaps, second.Gaps, "dry run findings carry no run-specific state")
	assert.Equal(t, first.Migrated, second.Migrated)
	assert.Equal(t, first.Skipped, second.Skipped)
	assert.Equal(t, first.Failed, second.Failed)
}

func TestRunOutcomeIndependentOfBatchSize(t *testing.T) {
	run := func(batchSize int) (*models.MigrationResult, *MemoryTargetStore) {
		source := processSource(5)
		target := NewMemoryTargetStore()
		cfg := testConfig()
		cfg.BatchSize = batchSize
		m := NewBatchMigrator(source, target, testSchema(), cfg)
		result, err := m.Run(context.Background())
		require.NoError(t, err)
		return result, target
	}

	small, smallTarget := run(1)
	large, largeTarget := run(3)

	assert.Equal(t, small.Migrated, large.Migrated)
	assert.Equal(t, small.Gaps, large.Gaps)
	require.Equal(t, smallTarget.Len(), largeTarget.Len())
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		a, err := smallTarget.Get(context.Background(), "processes", id)
		require.NoError(t, err)
		b, err := largeTarget.Get(context.Background(), "processes", id)
		require.NoError(t, err)
		assert.Equal(t, a.Checksum, b.Checksum)
	}
}

func TestRunHonorsCancellationAtBatchBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := processSource(6)
	target := NewMemoryTargetStore()

	sink := &recordingSink{onBatch: func(batchIndex int) {
		if batchIndex == 0 {
			cancel()
		}
	}}
	m := NewBatchMigrator(source, target, testSchema(), testConfig(), sink)

	result, err := m.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StateCancelled, result.State)
	assert.Equal(t, 2, result.Migrated, "the in-flight batch finishes before the run stops")
	assert.Equal(t, 4, result.Skipped)
	assertCounterInvariant(t, result)
	require.Len(t, result.Journal, 1)
	assert.Equal(t, 2, target.Len())
}

func TestRunConflictSkipLeavesExistingRecords(t *testing.T) {
	source := processSource(2)
	target := NewMemoryTargetStore()

	// p1 already exists in the target with different content.
	stale := NewMemoryRecordSource("processes")
	stale.Add(sourceRecord("processes", "p1", map[string]interface{}{"name": "old"}))
	writeAll(t, stale, target, testSchema())
	existing, err := target.Get(context.Background(), "processes", "p1")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ConflictPolicy = models.ConflictSkip
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, 1, result.Skipped)
	assertCounterInvariant(t, result)

	kept, err := target.Get(context.Background(), "processes", "p1")
	require.NoError(t, err)
	assert.Equal(t, existing.Checksum, kept.Checksum, "skip must not overwrite the target")

	// The divergence stays visible as a version conflict.
	conflicts := gapsOfType(result.Gaps, models.GapVersionConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"p1"}, conflicts[0].RecordIDs)
}

func TestRunConflictSkipDuringDryRun(t *testing.T) {
	source := processSource(1)
	target := NewMemoryTargetStore()

	stale := NewMemoryRecordSource("processes")
	stale.Add(sourceRecord("processes", "p1", map[string]interface{}{"name": "old"}))
	writeAll(t, stale, target, testSchema())

	cfg := testConfig()
	cfg.DryRun = true
	cfg.ConflictPolicy = models.ConflictSkip
	m := NewBatchMigrator(source, target, testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, target.Len(), "dry run must not touch the real target")
	// The shadow copy of the skipped record lets the post-scan report what a
	// real skip would leave behind.
	conflicts := gapsOfType(result.Gaps, models.GapVersionConflict)
	require.Len(t, conflicts, 1)
}

func TestRunEscalatedCheckFailsBatch(t *testing.T) {
	source := NewMemoryRecordSource("processes")
	// Missing required name: advisory SCHEMA_CONFORMANCE finding by default.
	source.Add(sourceRecord("processes", "p1", map[string]interface{}{"version": 2}))

	cfg := testConfig()
	cfg.EnableGapDetection = false
	cfg.EscalatedChecks = []models.ValidationCheck{models.CheckSchemaConformance}
	m := NewBatchMigrator(source, NewMemoryTargetStore(), testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.StateFailed, result.State)
}

func TestRunAdvisoryFindingDoesNotFailBatch(t *testing.T) {
	source := NewMemoryRecordSource("processes")
	source.Add(sourceRecord("processes", "p1", map[string]interface{}{"version": 2}))

	cfg := testConfig()
	cfg.EnableGapDetection = false
	m := NewBatchMigrator(source, NewMemoryTargetStore(), testSchema(), cfg)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	require.Len(t, result.Validation.Issues, 1)
	assert.Equal(t, models.CheckSchemaConformance, result.Validation.Issues[0].Check)
}

func TestRunPreScanFailureAborts(t *testing.T) {
	source := processSource(2)
	source.FailReads = true

	m := NewBatchMigrator(source, NewMemoryTargetStore(), testSchema(), testConfig())
	result, err := m.Run(context.Background())

	var scanErr *ScanError
	require.ErrorAs(t, err, &scanErr)
	assert.Equal(t, "pre", scanErr.Phase)
	assert.Equal(t, models.StateFailed, result.State)
	assert.Zero(t, result.Migrated)
}

func TestRunPostScanFailureDowngradesOnly(t *testing.T) {
	source := processSource(2)
	target := NewMemoryTargetStore()

	// Break the source once the single batch has been written, so only the
	// post-migration scan sees the failure.
	sink := &recordingSink{onBatch: func(int) { source.FailReads = true }}
	m := NewBatchMigrator(source, target, testSchema(), testConfig(), sink)

	result, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, result.State)
	assert.True(t, result.GapScanIncomplete)
	assert.Equal(t, 2, result.Migrated)
}

func TestRunParallelPrefetchMatchesSequential(t *testing.T) {
	run := func(parallel int) *models.MigrationResult {
		source := processSource(6)
		cfg := testConfig()
		cfg.MaxParallelBatches = parallel
		m := NewBatchMigrator(source, NewMemoryTargetStore(), testSchema(), cfg)
		result, err := m.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	sequential, prefetched := run(1), run(3)
	assert.Equal(t, sequential.Migrated, prefetched.Migrated)
	assert.Equal(t, sequential.State, prefetched.State)
	assert.Len(t, prefetched.Journal, len(sequential.Journal))
}

// An aborted run must release its read-ahead goroutine; otherwise every
// fail-fast run with prefetching enabled leaks one goroutine blocked on the
// batch channel.
func TestRunAbortReleasesPrefetch(t *testing.T) {
	before := runtime.NumGoroutine()

	for i := 0; i < 20; i++ {
		source := processSource(6)
		target := NewMemoryTargetStore()
		target.FailUpserts["processes/p1"] = true

		cfg := testConfig()
		cfg.MaxParallelBatches = 3
		m := NewBatchMigrator(source, target, testSchema(), cfg)

		_, err := m.Run(context.Background())
		require.Error(t, err)
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 20*time.Millisecond, "read-ahead goroutines must exit when the run aborts")
}

func TestRunSurvivesPanickingSink(t *testing.T) {
	m := NewBatchMigrator(processSource(2), NewMemoryTargetStore(), testSchema(), testConfig(), panickySink{})

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, 2, result.Migrated)
}
