package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/config"
	"github.com/atelierhq/atelier-auction-backend/internal/infrastructure/database"
	"github.com/atelierhq/atelier-auction-backend/internal/testutil/containers"
)

var (
	sharedPG     *containers.PostgresContainer
	sharedPGOnce sync.Once
	sharedPGErr  error
)

// sharedPostgres starts one container for the whole test binary. Individual
// tests get their own database inside it, so the startup cost is paid once.
func sharedPostgres(t *testing.T) *containers.PostgresContainer {
	t.Helper()

	sharedPGOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		sharedPG, sharedPGErr = containers.NewPostgresContainer(ctx)
	})
	if sharedPGErr != nil {
		t.Fatalf("failed to start postgres container: %v", sharedPGErr)
	}
	return sharedPG
}

// TestDB is an isolated, fully migrated database for one test.
type TestDB struct {
	t      *testing.T
	pool   *database.ConnectionPool
	url    string
	dbName string
}

// NewTestDB creates a fresh database on the shared container, runs all
// migrations against it, and opens the production connection pool. Tests that
// must stay unit-fast should be run with -short, which skips this entirely.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	pg := sharedPostgres(t)

	adminDB, err := sql.Open("postgres", pg.ConnectionString)
	require.NoError(t, err)
	defer adminDB.Close()

	dbName := fmt.Sprintf("test_atelier_%d", time.Now().UnixNano())
	_, err = adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)

	url, err := pg.ConnectionStringFor(dbName)
	require.NoError(t, err)

	migrateUp(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewConnectionPool(ctx, &config.DatabaseConfig{
		URL:             url,
		MaxConns:        10,
		MinConns:        1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
		ConnectTimeout:  10 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	tdb := &TestDB{
		t:      t,
		pool:   pool,
		url:    url,
		dbName: dbName,
	}

	t.Cleanup(func() {
		pool.Close()

		adminDB, err := sql.Open("postgres", pg.ConnectionString)
		if err != nil {
			return
		}
		defer adminDB.Close()
		adminDB.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName)) //nolint:errcheck
	})

	return tdb
}

// Pool returns the production connection pool bound to this test database.
func (tdb *TestDB) Pool() *database.ConnectionPool {
	return tdb.pool
}

// URL returns the connection string for tools that open their own connection.
func (tdb *TestDB) URL() string {
	return tdb.url
}

// TruncateTables empties all domain tables for reuse within a test.
func (tdb *TestDB) TruncateTables() {
	tdb.t.Helper()

	ctx := context.Background()
	for _, table := range []string{"bids", "auctions", "accounts"} {
		_, err := tdb.pool.Pool().Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		require.NoError(tdb.t, err)
	}
}

// AssertRowCount asserts the number of rows in a table.
func (tdb *TestDB) AssertRowCount(table string, expected int) {
	tdb.t.Helper()

	var count int
	err := tdb.pool.Pool().QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	require.NoError(tdb.t, err)
	require.Equal(tdb.t, expected, count, "expected %d rows in %s, got %d", expected, table, count)
}

// migrateUp applies every migration to the given database.
func migrateUp(t *testing.T, url string) {
	t.Helper()

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+MigrationsPath(), "postgres", driver)
	require.NoError(t, err)

	err = m.Up()
	require.NoError(t, err)

	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)
}

// MigrationsPath locates the migrations directory relative to this source
// file, so tests in any package resolve it correctly.
func MigrationsPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}
