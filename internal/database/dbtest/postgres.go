// Package dbtest starts a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"net/url"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hear-ci-prediction-service/internal/database"
	"github.com/hear-ci-prediction-service/internal/domain"
)

// Postgres is a running container with the schema migrated
type Postgres struct {
	DB     *database.DB
	URL    string
	Config domain.DatabaseConfig
}

// MigrationsDir resolves the repository's migrations directory
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Start launches postgres:15-alpine, applies all migrations and registers
// cleanup. The test is skipped when no container runtime is reachable.
func Start(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("hear_test"),
		postgres.WithUsername("hear"),
		postgres.WithPassword("hear_test_pw"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	password, _ := u.User.Password()
	cfg := domain.DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		Database: "hear_test",
		Username: u.User.Username(),
		Password: password,
		SSLMode:  "disable",
	}

	runner, err := database.NewMigrationRunner(dsn, MigrationsDir(), logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}
	if err := runner.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	_ = runner.Close()

	db, err := database.NewConnection(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}
	t.Cleanup(db.Close)

	return &Postgres{DB: db, URL: dsn, Config: cfg}
}
