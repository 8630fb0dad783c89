package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/trogers1052/nextworth-marketdata/internal/models"
)

// TestDB wraps a test database connection with cleanup
type TestDB struct {
	*DB
	container testcontainers.Container
	connStr   string
}

// SetupTestDB creates a new PostgreSQL container and returns a migrated DB
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := New(connStr)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	testDB := &TestDB{
		DB:        db,
		container: pgContainer,
		connStr:   connStr,
	}

	if err := testDB.Migrate(); err != nil {
		testDB.Cleanup(t)
		t.Fatalf("failed to run migrations: %v", err)
	}

	return testDB
}

// SetupSQLiteDB returns a migrated in-memory SQLite store
func SetupSQLiteDB(t *testing.T) *TestDB {
	t.Helper()

	db, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	testDB := &TestDB{DB: db}

	if err := testDB.Migrate(); err != nil {
		testDB.Cleanup(t)
		t.Fatalf("failed to run migrations: %v", err)
	}
	return testDB
}

// forEachBackend runs fn against SQLite and, outside short mode, PostgreSQL
func forEachBackend(t *testing.T, fn func(t *testing.T, testDB *TestDB)) {
	t.Run("sqlite", func(t *testing.T) {
		testDB := SetupSQLiteDB(t)
		defer testDB.Cleanup(t)
		fn(t, testDB)
	})

	t.Run("postgres", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping integration test in short mode")
		}
		testDB := SetupTestDB(t)
		defer testDB.Cleanup(t)
		fn(t, testDB)
	})
}

// Cleanup closes the database connection and terminates the container
func (tdb *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	if tdb.DB != nil {
		tdb.DB.Close()
	}

	if tdb.container != nil {
		if err := tdb.container.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	}
}

// TruncateAll empties all tables for test isolation
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()

	tables := []string{
		"prediction_points",
		"price_points",
		"assets",
	}

	for _, table := range tables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)
		if tdb.dialect == DialectSQLite {
			stmt = fmt.Sprintf("DELETE FROM %s", table)
		}
		if _, err := tdb.conn.Exec(stmt); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}

// GetRawConn returns the underlying sql.DB for direct queries in tests
func (tdb *TestDB) GetRawConn() *sql.DB {
	return tdb.conn
}

// mustAsset creates a catalog record for symbol
func (tdb *TestDB) mustAsset(t *testing.T, symbol string) *models.Asset {
	t.Helper()
	a, err := tdb.EnsureAsset(context.Background(), &models.Asset{Symbol: symbol, Category: models.CategoryStock, Currency: "USD"})
	if err != nil {
		t.Fatalf("failed to create asset %s: %v", symbol, err)
	}
	return a
}

func monthlyPoint(asset *models.Asset, period time.Time, close float64, fetchedAt time.Time) *models.PricePoint {
	c := decimal.NewFromFloat(close)
	return &models.PricePoint{
		AssetID:     asset.ID,
		Granularity: models.GranularityMonthly,
		Period:      period,
		Open:        c,
		High:        c.Add(decimal.NewFromInt(2)),
		Low:         c.Sub(decimal.NewFromInt(2)),
		Close:       c,
		Volume:      1000,
		Currency:    "USD",
		FetchedAt:   fetchedAt,
	}
}
