package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func TestApplyMigration_RecordsInSameTransaction(t *testing.T) {
	db, mock := setupMockDB(t)
	script := "CREATE TABLE things (id TEXT)"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(script)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO "migration_logs"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrationStore(db).ApplyMigration(context.Background(), 9, "create_things", script))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyMigration_FailedScriptLeavesNoLog(t *testing.T) {
	db, mock := setupMockDB(t)
	script := "CREATE TABLE broken ("

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(script)).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := NewMigrationStore(db).ApplyMigration(context.Background(), 9, "broken", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 9 (broken)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackMigration_UnknownAndUnapplied(t *testing.T) {
	db, mock := setupMockDB(t)

	err := RollbackMigration(context.Background(), db, 99)
	assert.EqualError(t, err, "migration version 99 not found")

	mock.ExpectQuery(`SELECT "version" FROM "migration_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	err = RollbackMigration(context.Background(), db, 2)
	assert.EqualError(t, err, "migration 2 has not been applied")
	assert.NoError(t, mock.ExpectationsWereMet())
}
