package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BartekS5/flowmigrate/pkg/models"
	"github.com/BartekS5/flowmigrate/pkg/utils"
)

// Dialect selects the paging syntax of the legacy store.
type Dialect string

const (
	DialectSQLite    Dialect = "sqlite3"
	DialectSQLServer Dialect = "sqlserver"
)

// SQLRecordSource reads the legacy row store through database/sql. Batches
// are ordered by the table's id column, so the same offset/limit always
// yields the same slice as long as nobody mutates the source mid-run.
type SQLRecordSource struct {
	DB      *sql.DB
	Schema  *models.SchemaSet
	Dialect Dialect
}

func NewSQLRecordSource(db *sql.DB, schema *models.SchemaSet, dialect Dialect) *SQLRecordSource {
	return &SQLRecordSource{DB: db, Schema: schema, Dialect: dialect}
}

func (s *SQLRecordSource) Tables() []string {
	return s.Schema.TableNames()
}

func (s *SQLRecordSource) Count(ctx context.Context, table string) (int, error) {
	if s.Schema.TableFor(table) == nil {
		return 0, fmt.Errorf("table %s is not declared in the schema", table)
	}
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := s.DB.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

func (s *SQLRecordSource) ReadBatch(ctx context.Context, table string, offset, limit int) ([]models.SourceRecord, error) {
	ts := s.Schema.TableFor(table)
	if ts == nil {
		return nil, fmt.Errorf("table %s is not declared in the schema", table)
	}

	var query string
	switch s.Dialect {
	case DialectSQLServer:
		query = fmt.Sprintf("SELECT * FROM %s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
			table, ts.IDField, offset, limit)
	default:
		query = fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d OFFSET %d",
			table, ts.IDField, limit, offset)
	}

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []models.SourceRecord
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(map[string]interface{}, len(cols))
		for i, colName := range cols {
			m[colName] = columns[i]
		}
		m = utils.NormalizeRow(m)

		records = append(records, models.SourceRecord{
			Table:  table,
			ID:     utils.IDString(m[ts.IDField]),
			Fields: models.FieldsFromInterface(m),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
