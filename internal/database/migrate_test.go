package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementsCoverAllTables(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 7)
	for _, table := range []string{"users", "refresh_tokens", "events", "tickets", "bookings", "payments", "password_resets"} {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				found = true
				break
			}
		}
		assert.True(t, found, "missing table %s", table)
	}
}

func TestMigrateStopsOnFirstError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS refresh_tokens").WillReturnError(errors.New("boom"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration statement 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOptionsDSN(t *testing.T) {
	dsn := Options{User: "app", Password: "secret", Host: "db", Port: "3306", Name: "eventflow"}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/eventflow?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
