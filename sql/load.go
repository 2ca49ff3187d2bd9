package sql

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
)

//go:embed sqlite/*.sql postgres/*.sql
var schemaFS embed.FS

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// Table lists for verification
var EntriesTables = []string{
	"entries",
	"entry_tags",
}

var RelationsTables = []string{
	"relations",
}

var SummariesTables = []string{
	"summaries",
	"summary_members",
}

var EmbeddingsTables = []string{
	"entry_embeddings",
}

var ScopesTables = []string{
	"scopes",
}

// Init prepares the database for the schema: the vector extension on
// postgres, an FTS5 availability check on sqlite.
func Init(db *sql.DB, driver string) error {
	initSQL, err := schema(driver, "init")
	if err != nil {
		return err
	}

	_, err = db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing init SQL: %w", err)
	}

	return nil
}

// LoadEntriesSql creates the entry, tag and lexical index tables.
func LoadEntriesSql(db *sql.DB, driver string, force bool) error {
	return load(db, driver, "entries", EntriesTables, force)
}

// LoadRelationsSql creates the relation edge table.
func LoadRelationsSql(db *sql.DB, driver string, force bool) error {
	return load(db, driver, "relations", RelationsTables, force)
}

// LoadSummariesSql creates the summary hierarchy tables.
func LoadSummariesSql(db *sql.DB, driver string, force bool) error {
	return load(db, driver, "summaries", SummariesTables, force)
}

// LoadEmbeddingsSql creates the entry embedding table.
func LoadEmbeddingsSql(db *sql.DB, driver string, force bool) error {
	return load(db, driver, "embeddings", EmbeddingsTables, force)
}

// LoadScopesSql creates the scope parent table.
func LoadScopesSql(db *sql.DB, driver string, force bool) error {
	return load(db, driver, "scopes", ScopesTables, force)
}

// LoadAllSql loads every schema file
func LoadAllSql(db *sql.DB, driver string, force bool) error {
	loaders := []func(*sql.DB, string, bool) error{
		LoadEntriesSql,
		LoadRelationsSql,
		LoadSummariesSql,
		LoadEmbeddingsSql,
		LoadScopesSql,
	}
	for _, loader := range loaders {
		if err := loader(db, driver, force); err != nil {
			return err
		}
	}
	return nil
}

func load(db *sql.DB, driver string, name string, tables []string, force bool) error {
	if !force {
		exist, err := checkTables(db, driver, tables)
		if err != nil {
			return fmt.Errorf("error checking existing %s tables: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	schemaSQL, err := schema(driver, name)
	if err != nil {
		return err
	}

	_, err = db.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkTables(db, driver, tables)
	if err != nil {
		return fmt.Errorf("error checking existing tables: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required %s tables were created", name)
	}

	log.Printf("SQL %s schema loaded successfully", name)
	return nil
}

func schema(driver string, name string) (string, error) {
	if driver != driverSQLite && driver != driverPostgres {
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
	b, err := schemaFS.ReadFile(driver + "/" + name + ".sql")
	if err != nil {
		return "", fmt.Errorf("error reading %s schema for %s: %w", name, driver, err)
	}
	return string(b), nil
}

// checkTables verifies that all required tables exist in the database
func checkTables(db *sql.DB, driver string, tables []string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?);`
	if driver == driverPostgres {
		query = `SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1);`
	}

	var allExist bool
	for _, table := range tables {
		err := db.QueryRow(query, table).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of table %s: %w", table, err)
		}
		if !allExist {
			log.Printf("Table %s does not exist", table)
			break
		}
	}
	return allExist, nil
}
