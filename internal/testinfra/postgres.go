// Package testinfra starts throwaway PostgreSQL instances for database tests.
package testinfra

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage    = "postgres:17-alpine"
	PostgresUser     = "urau"
	PostgresPassword = "urau"
	PostgresDB       = "urau_test"

	// ConnEnv overrides the container with an existing database.
	ConnEnv = "URAU_TEST_DATABASE_URL"
)

var (
	containerOnce sync.Once
	containerConn string
	containerErr  error
)

// StartPostgres runs a PostgreSQL container and returns its connection string.
func StartPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres: %w", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, "", fmt.Errorf("get connection string: %w", err)
	}
	return ctr, connStr, nil
}

// RequireDatabase returns a connection string to an empty database, or skips
// the test in short mode or when neither ConnEnv nor Docker is available.
// The container is shared by all tests in the binary; tables are dropped
// before returning.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	connStr := os.Getenv(ConnEnv)
	if connStr == "" {
		containerOnce.Do(func() {
			_, containerConn, containerErr = StartPostgres(context.Background())
		})
		if containerErr != nil {
			t.Skipf("%s not set and Docker unavailable: %v", ConnEnv, containerErr)
		}
		connStr = containerConn
	}

	resetTables(t, connStr)
	return connStr
}

func resetTables(t *testing.T, connStr string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	defer conn.Close(ctx) //nolint:errcheck

	_, err = conn.Exec(ctx, `DROP TABLE IF EXISTS temperature_histogram, temperature_distribution, bspline_coefficients, urau_cities CASCADE`)
	if err != nil {
		t.Fatalf("reset test database: %v", err)
	}
}
