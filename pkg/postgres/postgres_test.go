package postgres

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, RunMigrations(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_StopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS profiles").WillReturnError(errors.New("permission denied"))

	err = RunMigrations(db)
	assert.ErrorContains(t, err, "failed to execute migration")
	assert.NoError(t, mock.ExpectationsWereMet())
}
