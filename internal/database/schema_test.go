package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS slots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS waitlist_entries").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_StopsAtFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS slots").WillReturnError(errors.New("access denied"))

	err = EnsureSchema(context.Background(), db)
	assert.EqualError(t, err, "schema statement 0: access denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_Constraints(t *testing.T) {
	require.Len(t, schema, 2)
	assert.Contains(t, schema[0], "UNIQUE KEY uq_slots_cell (room, slot_date, hour)")
	assert.Contains(t, schema[1], "UNIQUE KEY uq_waitlist_position (slot_id, position)")
	assert.Contains(t, schema[1], "ON DELETE CASCADE")
}
