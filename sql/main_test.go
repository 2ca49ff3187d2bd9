package sql

import (
	"testing"

	"github.com/siherrmann/memoria/helper"
	"github.com/stretchr/testify/require"
)

func initDB(t *testing.T) *helper.Database {
	helper.SetTestSQLiteConfigEnvs(t)
	return openDB(t)
}

func initPostgresDB(t *testing.T) *helper.Database {
	helper.RequirePostgres(t)
	return openDB(t)
}

func openDB(t *testing.T) *helper.Database {
	dbConfig, err := helper.NewDatabaseConfiguration()
	require.NoError(t, err, "failed to create database configuration")
	db, err := helper.NewTestDatabase(dbConfig)
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	err = Init(db.Instance, db.Driver)
	require.NoError(t, err)

	return db
}
