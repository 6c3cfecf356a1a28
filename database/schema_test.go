package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gewnthar/areasync/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `districts`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db, "districts"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_UniqueOnlyAmongLiveRows(t *testing.T) {
	assert.Contains(t, createAreaTableSQL, "IF(delete_time IS NULL, code, NULL)")
	assert.Contains(t, createAreaTableSQL, "UNIQUE KEY uk_code_active (code_active)")
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host: "db", Port: "3307", User: "u", Password: "p", DBName: "geo", Charset: "utf8mb4",
	})
	assert.Equal(t, "u:p@tcp(db:3307)/geo?charset=utf8mb4", dsn)
}
