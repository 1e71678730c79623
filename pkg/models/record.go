package models

import "time"

// Engine-stamped and store-added bookkeeping fields. These are excluded from
// content checksums and structural comparison, otherwise every migrated
// record would look different from its source.
const (
	FieldMigratedFrom       = "migrated_from"
	FieldMigrationTimestamp = "migration_timestamp"
	FieldEmbeddingID        = "embedding_id"
	FieldGraphID            = "graph_id"
	FieldCreatedAt          = "created_at"
	FieldUpdatedAt          = "updated_at"
)

var metadataFields = map[string]bool{
	FieldMigratedFrom:       true,
	FieldMigrationTimestamp: true,
	FieldEmbeddingID:        true,
	FieldGraphID:            true,
	FieldCreatedAt:          true,
	FieldUpdatedAt:          true,
}

// IsMetadataField reports whether a field name is engine- or store-added
// bookkeeping rather than record content.
func IsMetadataField(name string) bool {
	return metadataFields[name]
}

// SourceRecord is one row read from the legacy store: a table name, a
// primary id and the record content as a Value field map.
type SourceRecord struct {
	Table  string
	ID     string
	Fields map[string]Value
}

// MigratedRecord is a SourceRecord after transformation, plus the fields the
// engine stamps and the identifiers the target store adds on write.
type MigratedRecord struct {
	Table              string
	ID                 string
	Fields             map[string]Value
	MigratedFrom       string
	MigrationTimestamp time.Time
	EmbeddingID        string
	GraphID            string
	Checksum           string
	Version            int
}

// BatchJournalEntry records one committed batch. The journal is append-only
// in commit order and is consumed only by rollback, which replays it in
// reverse.
type BatchJournalEntry struct {
	BatchIndex  int       `json:"batch_index"`
	Table       string    `json:"table"`
	RecordIDs   []string  `json:"record_ids"`
	CommittedAt time.Time `json:"committed_at"`
}
