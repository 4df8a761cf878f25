//-------------------------------------------------------------------------
//
// pgEdge Stock ETL
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package testutil provides utilities for integration testing.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pgEdge/pgedge-stocketl/internal/config"
)

const (
	// TestConnEnv points the tests at an existing server instead of a
	// container.
	TestConnEnv = "STOCKETL_TEST_CONN"

	// PostgresImage is the image started when TestConnEnv is unset.
	PostgresImage = "postgres:16-alpine"

	// TestDBPrefix is the prefix for test databases.
	TestDBPrefix = "stocketl_test_"
)

var (
	serverOnce    sync.Once
	serverConnStr string
	serverErr     error
)

// Postgres returns a connection string to a server the test may create
// databases on. It skips the test in short mode or when no server can be
// reached or started.
func Postgres(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	serverOnce.Do(func() {
		if connStr := os.Getenv(TestConnEnv); connStr != "" {
			serverConnStr, serverErr = connStr, ping(connStr)
			return
		}
		serverConnStr, serverErr = startContainer()
	})

	if serverErr != nil {
		t.Skipf("PostgreSQL not available, skipping integration test: %v", serverErr)
	}
	return serverConnStr
}

func ping(connStr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

// startContainer runs PostgreSQL once per test binary. The container is
// left to the testcontainers reaper.
func startContainer() (string, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "postgres",
			"POSTGRES_USER":     "stocketl",
			"POSTGRES_PASSWORD": "stocketl",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://stocketl:stocketl@%s:%s/postgres?sslmode=disable",
		host, port.Port())

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = ping(connStr); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	return connStr, err
}

// CreateTestDB creates a throwaway database on the server behind
// baseConnStr and returns its parameters. The database is dropped when the
// test ends, unless the test failed, so it can be inspected.
func CreateTestDB(t *testing.T, baseConnStr, purpose string) config.DBConfig {
	t.Helper()

	// Generate random suffix for database name
	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("Failed to generate random database name: %v", err)
	}
	dbName := TestDBPrefix + purpose + "_" + hex.EncodeToString(randomBytes)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, baseConnStr)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cfg, err := DBConfig(baseConnStr, dbName)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("Test failed - keeping database %s for diagnostics", dbName)
			return
		}
		DropTestDB(t, baseConnStr, dbName)
	})

	return cfg
}

// DBConfig converts a connection string into connection parameters for
// database dbName.
func DBConfig(connStr, dbName string) (config.DBConfig, error) {
	parsed, err := pgx.ParseConfig(connStr)
	if err != nil {
		return config.DBConfig{}, err
	}

	sslMode := "disable"
	if parsed.TLSConfig != nil {
		sslMode = "require"
	}

	return config.DBConfig{
		Host:           parsed.Host,
		Port:           int(parsed.Port),
		Name:           dbName,
		User:           parsed.User,
		Password:       parsed.Password,
		SSLMode:        sslMode,
		ConnectTimeout: 10,
	}, nil
}

// DropTestDB drops the test database.
func DropTestDB(t *testing.T, baseConnStr, dbName string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, baseConnStr)
	if err != nil {
		t.Logf("Warning: Failed to connect to drop test database: %v", err)
		return
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{dbName}.Sanitize()+" WITH (FORCE)")
	if err != nil {
		t.Logf("Warning: Failed to drop test database: %v", err)
	}
}

// ConnectTestDB connects to a test database. The pool is closed when the
// test ends.
func ConnectTestDB(t *testing.T, cfg config.DBConfig) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, pool *pgxpool.Pool, table string) int64 {
	t.Helper()

	var n int64
	err := pool.QueryRow(context.Background(),
		"SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n)
	if err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
