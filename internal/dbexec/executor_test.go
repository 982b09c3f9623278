package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardExecutor_NilDB(t *testing.T) {
	exec := NewStandardExecutor(nil)
	ctx := context.Background()

	_, err := exec.QueryContext(ctx, "SELECT 1")
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	_, err = exec.ExecContext(ctx, "SELECT 1")
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	_, err = exec.BeginTx(ctx)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func TestStandardExecutor_TransactionCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tags").WithArgs("go").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT label FROM tags").WillReturnRows(sqlmock.NewRows([]string{"label"}).AddRow("go"))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := NewStandardExecutor(db).BeginTx(ctx)
	require.NoError(t, err)

	res, err := tx.ExecContext(ctx, "INSERT INTO tags (label) VALUES (?)", "go")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	rows, err := tx.QueryContext(ctx, "SELECT label FROM tags")
	require.NoError(t, err)
	require.True(t, rows.Next())
	var label string
	require.NoError(t, rows.Scan(&label))
	require.NoError(t, rows.Close())
	assert.Equal(t, "go", label)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStandardExecutor_TransactionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM tags").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	ctx := context.Background()
	tx, err := NewStandardExecutor(db).BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx.ExecContext(ctx, "DELETE FROM tags")
	require.Error(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
