package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/flowmigrate/pkg/models"
)

func TestSQLSourceCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM processes`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	source := NewSQLRecordSource(db, testSchema(), DialectSQLite)
	count, err := source.Count(context.Background(), "processes")
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceCountRejectsUndeclaredTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	source := NewSQLRecordSource(db, testSchema(), DialectSQLite)
	_, err = source.Count(context.Background(), "users")
	assert.ErrorContains(t, err, "not declared")
}

func TestSQLSourceReadBatchSQLitePaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "version", "data"}).
		AddRow("p3", "Gamma", int64(2), `{"note":"x"}`).
		AddRow("p4", "Delta", int64(1), nil)
	mock.ExpectQuery(`SELECT \* FROM processes ORDER BY id LIMIT 2 OFFSET 2`).
		WillReturnRows(rows)

	source := NewSQLRecordSource(db, testSchema(), DialectSQLite)
	batch, err := source.ReadBatch(context.Background(), "processes", 2, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Equal(t, "p3", batch[0].ID)
	assert.Equal(t, "processes", batch[0].Table)
	assert.Equal(t, models.StringValue("Gamma"), batch[0].Fields["name"])
	assert.Equal(t, models.NumberValue(2), batch[0].Fields["version"])
	assert.Equal(t, models.StringValue(`{"note":"x"}`), batch[0].Fields["data"])

	assert.Equal(t, "p4", batch[1].ID)
	assert.Equal(t, models.KindNull, batch[1].Fields["data"].Kind)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceReadBatchSQLServerPaging(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "element_type", "process_id"}).
		AddRow("e1", "task", "p1")
	mock.ExpectQuery(`SELECT \* FROM elements ORDER BY id OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY`).
		WillReturnRows(rows)

	source := NewSQLRecordSource(db, testSchema(), DialectSQLServer)
	batch, err := source.ReadBatch(context.Background(), "elements", 0, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "e1", batch[0].ID)
	assert.Equal(t, models.StringValue("p1"), batch[0].Fields["process_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceReadBatchDecodesBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Drivers commonly hand text columns back as []byte.
	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow([]byte("p1"), []byte("Alpha"))
	mock.ExpectQuery(`SELECT \* FROM processes`).WillReturnRows(rows)

	source := NewSQLRecordSource(db, testSchema(), DialectSQLite)
	batch, err := source.ReadBatch(context.Background(), "processes", 0, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "p1", batch[0].ID)
	assert.Equal(t, models.StringValue("Alpha"), batch[0].Fields["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLSourceReadBatchQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT \* FROM processes`).WillReturnError(context.DeadlineExceeded)

	source := NewSQLRecordSource(db, testSchema(), DialectSQLite)
	_, err = source.ReadBatch(context.Background(), "processes", 0, 5)
	assert.ErrorContains(t, err, "failed to read batch")
}
