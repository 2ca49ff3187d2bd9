package helper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabaseName = "database"
	testDatabaseUser = "user"
	testDatabasePass = "password"
)

// MustStartPostgresContainer starts a pgvector enabled postgres container.
// It returns the teardown function and the mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDatabaseName),
		postgres.WithUsername(testDatabaseUser),
		postgres.WithPassword(testDatabasePass),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", NewError("start postgres container", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return pgContainer.Terminate, "", NewError("get mapped port", err)
	}

	return pgContainer.Terminate, port.Port(), nil
}

// MustStartRedisContainer starts a redis container and returns its teardown
// function and address.
func MustStartRedisContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, "", NewError("start redis container", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		return redisContainer.Terminate, "", NewError("get container host", err)
	}
	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		return redisContainer.Terminate, "", NewError("get mapped port", err)
	}

	return redisContainer.Terminate, fmt.Sprintf("%s:%s", host, port.Port()), nil
}

// SetTestDatabaseConfigEnvs points the database configuration at a test
// postgres container listening on port.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("MEMORIA_DB_DRIVER", DriverPostgres)
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", port)
	t.Setenv("DB_DATABASE", testDatabaseName)
	t.Setenv("DB_USERNAME", testDatabaseUser)
	t.Setenv("DB_PASSWORD", testDatabasePass)
	t.Setenv("DB_SCHEMA", "public")
	t.Setenv("DB_SSLMODE", "disable")
}

// SetTestSQLiteConfigEnvs points the database configuration at a sqlite file
// inside the test's temporary directory.
func SetTestSQLiteConfigEnvs(t *testing.T) {
	t.Setenv("MEMORIA_DB_DRIVER", DriverSQLite)
	t.Setenv("MEMORIA_DB_PATH", t.TempDir()+"/memoria.db")
}

var (
	postgresOnce sync.Once
	postgresPort string
	postgresErr  error

	redisOnce sync.Once
	redisAddr string
	redisErr  error
)

// RequirePostgres starts one postgres container per test binary and points
// the database configuration at it. The test is skipped if no container
// provider is available. The container is reaped when the process exits.
func RequirePostgres(t *testing.T) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	postgresOnce.Do(func() {
		_, postgresPort, postgresErr = MustStartPostgresContainer()
	})
	if postgresErr != nil {
		t.Skipf("postgres container unavailable: %v", postgresErr)
	}

	SetTestDatabaseConfigEnvs(t, postgresPort)
}

// RequireRedis starts one redis container per test binary and returns its
// address. The test is skipped if no container provider is available.
func RequireRedis(t *testing.T) string {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	redisOnce.Do(func() {
		_, redisAddr, redisErr = MustStartRedisContainer()
	})
	if redisErr != nil {
		t.Skipf("redis container unavailable: %v", redisErr)
	}

	return redisAddr
}
