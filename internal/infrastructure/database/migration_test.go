package database

import (
	"database/sql"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier-auction-backend/internal/testutil"
)

func openRaw(t *testing.T, db *testutil.TestDB) *sql.DB {
	t.Helper()
	sqlDB, err := sql.Open("postgres", db.URL())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return sqlDB
}

// resetSchema wipes everything, including the migration bookkeeping, so each
// test exercises the migrations from a blank database.
func resetSchema(t *testing.T, sqlDB *sql.DB) {
	t.Helper()
	_, err := sqlDB.Exec(`
		DROP SCHEMA IF EXISTS public CASCADE;
		CREATE SCHEMA public;
		GRANT ALL ON SCHEMA public TO postgres;
		GRANT ALL ON SCHEMA public TO public;
	`)
	require.NoError(t, err)
}

func newMigrator(t *testing.T, sqlDB *sql.DB) *migrate.Migrate {
	t.Helper()
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	require.NoError(t, err)

	m, err := migrate.NewWithDatabaseInstance("file://"+testutil.MigrationsPath(), "postgres", driver)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func tableExists(t *testing.T, sqlDB *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := sqlDB.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = $1
		)
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func indexExists(t *testing.T, sqlDB *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := sqlDB.QueryRow(`SELECT EXISTS (SELECT FROM pg_indexes WHERE indexname = $1)`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrationsRoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB := openRaw(t, db)

	resetSchema(t, sqlDB)
	m := newMigrator(t, sqlDB)

	require.NoError(t, m.Up())

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	for _, table := range []string{"accounts", "auctions", "bids"} {
		assert.True(t, tableExists(t, sqlDB, table), "table %s should exist after up", table)
	}

	assert.ErrorIs(t, m.Up(), migrate.ErrNoChange, "up must be idempotent")

	require.NoError(t, m.Down())
	_, _, err = m.Version()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)

	for _, table := range []string{"accounts", "auctions", "bids"} {
		assert.False(t, tableExists(t, sqlDB, table), "table %s should be gone after down", table)
	}

	require.NoError(t, m.Up(), "migrations must reapply cleanly")
}

func TestMigrationsStepwise(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB := openRaw(t, db)

	resetSchema(t, sqlDB)
	m := newMigrator(t, sqlDB)

	require.NoError(t, m.Steps(1))
	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.True(t, tableExists(t, sqlDB, "auctions"))
	assert.False(t, indexExists(t, sqlDB, "idx_auctions_seller_id"))

	require.NoError(t, m.Steps(1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.True(t, indexExists(t, sqlDB, "idx_auctions_seller_id"))

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, indexExists(t, sqlDB, "idx_auctions_seller_id"))
}

func TestSchemaConstraints(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB := openRaw(t, db)

	t.Run("balances cannot go negative", func(t *testing.T) {
		_, err := sqlDB.Exec(`
			INSERT INTO accounts (email, name, available_minor, reserved_minor)
			VALUES ('negative@example.com', 'Bad Balance', -1, 0)
		`)
		require.Error(t, err)
	})

	t.Run("bid amounts must be positive", func(t *testing.T) {
		var accountID, auctionID string
		err := sqlDB.QueryRow(`
			INSERT INTO accounts (email, name) VALUES ('bidder@example.com', 'Bidder')
			RETURNING id
		`).Scan(&accountID)
		require.NoError(t, err)

		err = sqlDB.QueryRow(`
			INSERT INTO auctions (seller_id, title, start_price_minor, current_price_minor, min_increment_minor, starts_at, ends_at)
			VALUES ($1, 'Lot 1', 1000, 1000, 100, NOW(), NOW() + INTERVAL '1 hour')
			RETURNING id
		`, accountID).Scan(&auctionID)
		require.NoError(t, err)

		_, err = sqlDB.Exec(`
			INSERT INTO bids (auction_id, bidder_id, amount_minor) VALUES ($1, $2, 0)
		`, auctionID, accountID)
		require.Error(t, err)
	})

	t.Run("unknown status values are rejected", func(t *testing.T) {
		var accountID string
		err := sqlDB.QueryRow(`
			INSERT INTO accounts (email, name) VALUES ('seller2@example.com', 'Seller')
			RETURNING id
		`).Scan(&accountID)
		require.NoError(t, err)

		_, err = sqlDB.Exec(`
			INSERT INTO auctions (seller_id, title, status, start_price_minor, current_price_minor, min_increment_minor, starts_at, ends_at)
			VALUES ($1, 'Lot 2', 'paused', 1000, 1000, 100, NOW(), NOW() + INTERVAL '1 hour')
		`, accountID)
		require.Error(t, err)
	})
}
