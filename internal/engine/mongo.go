package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

// Store-internal bookkeeping keys, kept out of record content.
const (
	fieldChecksum = "checksum"
	fieldVersion  = "migration_version"
)

// MongoTargetStore writes migrated records into the document store: one
// collection per source table, _id equal to the source record id. The store
// stamps embedding_id/graph_id (the polyglot side's identifiers) and
// created_at/updated_at on write, and keeps the content checksum and a write
// version so re-runs with changed content are detectable.
type MongoTargetStore struct {
	Client   *mongo.Client
	Database string
	Timeout  time.Duration
}

func NewMongoTargetStore(client *mongo.Client, database string) *MongoTargetStore {
	return &MongoTargetStore{Client: client, Database: database, Timeout: 30 * time.Second}
}

func (m *MongoTargetStore) collection(table string) *mongo.Collection {
	return m.Client.Database(m.Database).Collection(table)
}

func (m *MongoTargetStore) Upsert(ctx context.Context, rec *models.MigratedRecord) (UpsertResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	coll := m.collection(rec.Table)
	checksum := utils.Checksum(rec.Fields)
	now := time.Now().UTC()

	doc := bson.M{"_id": rec.ID}
	for k, v := range rec.Fields {
		if k == "_id" {
			continue
		}
		doc[k] = v.ToInterface()
	}
	doc[models.FieldMigratedFrom] = rec.MigratedFrom
	doc[models.FieldMigrationTimestamp] = rec.MigrationTimestamp
	doc[fieldChecksum] = checksum
	doc[models.FieldUpdatedAt] = now

	// Preserve the store identifiers and creation time of an existing
	// record; bump the version when the content actually changed.
	var existing bson.M
	err := coll.FindOne(opCtx, bson.M{"_id": rec.ID}).Decode(&existing)
	switch {
	case err == nil:
		doc[models.FieldEmbeddingID] = existing[models.FieldEmbeddingID]
		doc[models.FieldGraphID] = existing[models.FieldGraphID]
		doc[models.FieldCreatedAt] = existing[models.FieldCreatedAt]
		version, _ := utils.ConvertToInt(existing[fieldVersion])
		if prior, _ := existing[fieldChecksum].(string); prior != checksum {
			version++
		}
		if version < 1 {
			version = 1
		}
		doc[fieldVersion] = version
	case errors.Is(err, mongo.ErrNoDocuments):
		doc[models.FieldEmbeddingID] = uuid.NewString()
		doc[models.FieldGraphID] = uuid.NewString()
		doc[models.FieldCreatedAt] = now
		doc[fieldVersion] = 1
	default:
		return UpsertResult{}, fmt.Errorf("failed to check existing document %s/%s: %w", rec.Table, rec.ID, err)
	}

	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	if _, err := coll.UpdateOne(opCtx, bson.M{"_id": rec.ID}, update, opts); err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert %s/%s: %w", rec.Table, rec.ID, err)
	}

	return UpsertResult{ID: rec.ID, Checksum: checksum}, nil
}

func (m *MongoTargetStore) Get(ctx context.Context, table, id string) (*models.MigratedRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	var doc bson.M
	err := m.collection(table).FindOne(opCtx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s: %w", table, id, err)
	}

	return decodeMigratedDoc(table, id, doc), nil
}

func (m *MongoTargetStore) Delete(ctx context.Context, table, id string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	res, err := m.collection(table).DeleteOne(opCtx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoTargetStore) Exists(ctx context.Context, table, id string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, m.Timeout)
	defer cancel()

	count, err := m.collection(table).CountDocuments(opCtx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", table, id, err)
	}
	return count > 0, nil
}

func decodeMigratedDoc(table, id string, doc bson.M) *models.MigratedRecord {
	rec := &models.MigratedRecord{Table: table, ID: id}
	fields := make(map[string]models.Value)

	for k, v := range doc {
		normalized := utils.NormalizeDriverValue(v)
		switch k {
		case "_id":
			// Already captured as the record id.
		case models.FieldMigratedFrom:
			rec.MigratedFrom, _ = normalized.(string)
			fields[k] = models.FromInterface(normalized)
		case models.FieldMigrationTimestamp:
			if t, err := utils.ConvertDateTime(normalized); err == nil {
				rec.MigrationTimestamp = t
			}
			fields[k] = models.FromInterface(normalized)
		case models.FieldEmbeddingID:
			rec.EmbeddingID, _ = normalized.(string)
			fields[k] = models.FromInterface(normalized)
		case models.FieldGraphID:
			rec.GraphID, _ = normalized.(string)
			fields[k] = models.FromInterface(normalized)
		case fieldChecksum:
			rec.Checksum, _ = normalized.(string)
		case fieldVersion:
			if n, err := utils.ConvertToInt(normalized); err == nil {
				rec.Version = n
			}
		default:
			fields[k] = models.FromInterface(normalized)
		}
	}

	rec.Fields = fields
	return rec
}
