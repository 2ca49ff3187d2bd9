package database

import (
	"testing"

	"github.com/siherrmann/memoria/helper"
	loadSql "github.com/siherrmann/memoria/sql"
	"github.com/stretchr/testify/require"
)

func initDB(t *testing.T) *helper.Database {
	helper.SetTestSQLiteConfigEnvs(t)
	return openDB(t)
}

func initPostgresDB(t *testing.T) *helper.Database {
	helper.RequirePostgres(t)
	database := openDB(t)

	// The container is shared across tests, so every test starts empty.
	require.NoError(t, loadSql.LoadAllSql(database.Instance, database.Driver, false))
	_, err := database.Instance.Exec(`TRUNCATE entries, entry_tags, relations, summaries, summary_members, entry_embeddings, scopes`)
	require.NoError(t, err)

	return database
}

func openDB(t *testing.T) *helper.Database {
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	database, err := helper.NewTestDatabase(dbConfig)
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = database.Close() })

	err = loadSql.Init(database.Instance, database.Driver)
	require.NoError(t, err, "failed to initialize database")

	return database
}

func intPtr(i int) *int {
	return &i
}
