// Package testutil starts throwaway backing services for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce sync.Once
	pgDSN  string
	pgErr  error
)

// GetPostgresDSN returns the DSN of a shared Testcontainers Postgres
// instance. If the container cannot be started (e.g. Docker not
// available), the calling test is skipped.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()

	pgOnce.Do(func() {
		pgDSN, pgErr = startPostgresContainer()
	})

	if pgErr != nil {
		t.Skipf("skipping Postgres tests: %v", pgErr)
	}
	return pgDSN
}

func startPostgresContainer() (dsn string, err error) {
	// Give a generous timeout in CI environments.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// Guard against Testcontainers panicking (e.g. rootless Docker).
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("starting Postgres testcontainer panicked: %v", r)
		}
	}()

	postgresC, err := testcontainers.Run(
		ctx, "postgres:16",
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("ready to accept connections"),
				wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
					return fmt.Sprintf("postgres://grafo:grafo@%s:%s/grafo_test?sslmode=disable", host, port.Port())
				}).WithQuery("SELECT 1"),
			).WithDeadline(2*time.Minute),
		),
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "grafo",
			"POSTGRES_PASSWORD": "grafo",
			"POSTGRES_DB":       "grafo_test",
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to start Postgres testcontainer: %w", err)
	}

	// Cleanup is deliberately not tied to a single test; the container is
	// shared by the whole package run and reaped at process exit.

	endpoint, err := postgresC.Endpoint(ctx, "")
	if err != nil {
		_ = postgresC.Terminate(context.Background())
		return "", fmt.Errorf("failed to get Postgres endpoint: %w", err)
	}

	return fmt.Sprintf("postgres://grafo:grafo@%s/grafo_test?sslmode=disable", endpoint), nil
}
