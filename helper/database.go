package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfiguration holds the connection settings of the store.
// Path is used by the sqlite driver, the remaining fields by postgres.
type DatabaseConfiguration struct {
	Driver   string
	Path     string
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the configuration from the environment.
// A .env file in the working directory is loaded first if present.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	_ = godotenv.Load()

	config := &DatabaseConfiguration{
		Driver: getEnv("MEMORIA_DB_DRIVER", DriverSQLite),
	}

	switch config.Driver {
	case DriverSQLite:
		config.Path = getEnv("MEMORIA_DB_PATH", defaultDatabasePath())
	case DriverPostgres:
		config.Host = os.Getenv("DB_HOST")
		config.Port = os.Getenv("DB_PORT")
		config.Database = os.Getenv("DB_DATABASE")
		config.Username = os.Getenv("DB_USERNAME")
		config.Password = os.Getenv("DB_PASSWORD")
		config.Schema = getEnv("DB_SCHEMA", "public")
		config.SSLMode = getEnv("DB_SSLMODE", "disable")

		var missing []string
		for name, value := range map[string]string{
			"DB_HOST":     config.Host,
			"DB_PORT":     config.Port,
			"DB_DATABASE": config.Database,
			"DB_USERNAME": config.Username,
		} {
			if value == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, Errorf(ErrInvalidInput, "missing environment variables: %s", strings.Join(missing, ", "))
		}
		if _, err := strconv.Atoi(config.Port); err != nil {
			return nil, Errorf(ErrInvalidInput, "DB_PORT must be a number, got %q", config.Port)
		}
	default:
		return nil, Errorf(ErrInvalidInput, "unknown database driver %q", config.Driver)
	}

	return config, nil
}

// DataSourceName returns the driver specific connection string.
func (c *DatabaseConfiguration) DataSourceName() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
			c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode, c.Schema,
		)
	}
	return c.Path + "?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
}

// Database is an open connection to the store.
type Database struct {
	Name     string
	Driver   string
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens and pings the database described by config.
func NewDatabase(name string, config *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if config == nil {
		return nil, Errorf(ErrInvalidInput, "database configuration is nil")
	}
	if logger == nil {
		logger = NewLogger(os.Stdout, slog.LevelInfo)
	}

	if config.Driver == DriverSQLite && config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o750); err != nil {
			return nil, NewError("create database directory", err)
		}
	}

	instance, err := sql.Open(config.Driver, config.DataSourceName())
	if err != nil {
		return nil, NewError("open database", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := instance.PingContext(ctx); err != nil {
		_ = instance.Close()
		return nil, NewError("ping database", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("driver", config.Driver))

	return &Database{
		Name:     name,
		Driver:   config.Driver,
		Instance: instance,
		Logger:   logger,
	}, nil
}

// NewTestDatabase opens a database with a logger that only prints errors.
func NewTestDatabase(config *DatabaseConfiguration) (*Database, error) {
	return NewDatabase("test", config, NewLogger(os.Stderr, slog.LevelError))
}

// IsPostgres reports whether the database uses the postgres driver.
func (d *Database) IsPostgres() bool {
	return d.Driver == DriverPostgres
}

// Rebind rewrites '?' placeholders into the driver's bind syntax.
func (d *Database) Rebind(query string) string {
	if !d.IsPostgres() {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	if d == nil || d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".memoria", "memoria.db")
	}
	return filepath.Join(home, ".memoria", "memoria.db")
}
