package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

// MemoryTargetStore is a map-backed TargetStore. Dry runs shadow-write into
// it so that validation and the post-migration scan see exactly what a real
// run would have produced; tests use it as the store fake. FailUpserts and
// FailDeletes inject write/delete failures for specific "table/id" keys.
type MemoryTargetStore struct {
	mu      sync.Mutex
	records map[string]*models.MigratedRecord

	FailUpserts map[string]bool
	FailDeletes map[string]bool
}

func NewMemoryTargetStore() *MemoryTargetStore {
	return &MemoryTargetStore{
		records:     make(map[string]*models.MigratedRecord),
		FailUpserts: make(map[string]bool),
		FailDeletes: make(map[string]bool),
	}
}

func memKey(table, id string) string {
	return table + "/" + id
}

func (m *MemoryTargetStore) Upsert(ctx context.Context, rec *models.MigratedRecord) (UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(rec.Table, rec.ID)
	if m.FailUpserts[key] {
		return UpsertResult{}, fmt.Errorf("simulated write failure for %s", key)
	}

	checksum := utils.Checksum(rec.Fields)
	now := time.Now().UTC()

	stored := &models.MigratedRecord{
		Table:              rec.Table,
		ID:                 rec.ID,
		Fields:             cloneFields(rec.Fields),
		MigratedFrom:       rec.MigratedFrom,
		MigrationTimestamp: rec.MigrationTimestamp,
		Checksum:           checksum,
		Version:            1,
	}

	if existing, ok := m.records[key]; ok {
		stored.EmbeddingID = existing.EmbeddingID
		stored.GraphID = existing.GraphID
		stored.Version = existing.Version
		if existing.Checksum != checksum {
			stored.Version++
		}
		stored.Fields[models.FieldCreatedAt] = existing.Fields[models.FieldCreatedAt]
	} else {
		stored.EmbeddingID = uuid.NewString()
		stored.GraphID = uuid.NewString()
		stored.Fields[models.FieldCreatedAt] = models.StringValue(now.Format(time.RFC3339))
	}

	stored.Fields[models.FieldMigratedFrom] = models.StringValue(stored.MigratedFrom)
	stored.Fields[models.FieldMigrationTimestamp] = models.StringValue(stored.MigrationTimestamp.Format(time.RFC3339))
	stored.Fields[models.FieldEmbeddingID] = models.StringValue(stored.EmbeddingID)
	stored.Fields[models.FieldGraphID] = models.StringValue(stored.GraphID)
	stored.Fields[models.FieldUpdatedAt] = models.StringValue(now.Format(time.RFC3339))

	m.records[key] = stored
	return UpsertResult{ID: rec.ID, Checksum: checksum}, nil
}

func (m *MemoryTargetStore) Get(ctx context.Context, table, id string) (*models.MigratedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[memKey(table, id)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	copied.Fields = cloneFields(rec.Fields)
	return &copied, nil
}

func (m *MemoryTargetStore) Delete(ctx context.Context, table, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memKey(table, id)
	if m.FailDeletes[key] {
		return false, fmt.Errorf("simulated delete failure for %s", key)
	}
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func (m *MemoryTargetStore) Exists(ctx context.Context, table, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.records[memKey(table, id)]
	return ok, nil
}

// Len reports how many records the store holds.
func (m *MemoryTargetStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Seed inserts a record directly, bypassing failure injection. Used to set
// up pre-existing target state in tests and conflict scenarios.
func (m *MemoryTargetStore) Seed(rec *models.MigratedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *rec
	copied.Fields = cloneFields(rec.Fields)
	if copied.Checksum == "" {
		copied.Checksum = utils.Checksum(copied.Fields)
	}
	if copied.Version == 0 {
		copied.Version = 1
	}
	m.records[memKey(rec.Table, rec.ID)] = &copied
}

func cloneFields(fields map[string]models.Value) map[string]models.Value {
	out := make(map[string]models.Value, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// MemoryRecordSource is a slice-backed RecordSource used in tests and by the
// integration suite. Records keep their insertion order per table.
type MemoryRecordSource struct {
	tables  []string
	records map[string][]models.SourceRecord

	FailCounts bool
	FailReads  bool
}

func NewMemoryRecordSource(tables ...string) *MemoryRecordSource {
	return &MemoryRecordSource{
		tables:  tables,
		records: make(map[string][]models.SourceRecord),
	}
}

// Add appends a record to its table, declaring the table on first use.
func (m *MemoryRecordSource) Add(rec models.SourceRecord) {
	if _, ok := m.records[rec.Table]; !ok {
		found := false
		for _, t := range m.tables {
			if t == rec.Table {
				found = true
				break
			}
		}
		if !found {
			m.tables = append(m.tables, rec.Table)
		}
	}
	m.records[rec.Table] = append(m.records[rec.Table], rec)
}

func (m *MemoryRecordSource) Tables() []string {
	return m.tables
}

func (m *MemoryRecordSource) Count(ctx context.Context, table string) (int, error) {
	if m.FailCounts {
		return 0, fmt.Errorf("simulated source failure counting %s", table)
	}
	return len(m.records[table]), nil
}

func (m *MemoryRecordSource) ReadBatch(ctx context.Context, table string, offset, limit int) ([]models.SourceRecord, error) {
	if m.FailReads {
		return nil, fmt.Errorf("simulated source failure reading %s", table)
	}
	recs := m.records[table]
	if offset >= len(recs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end], nil
}
