// Package integration runs the fulfillment stack against a real PostgreSQL
// started with testcontainers. The schema comes from the embedded SQL
// migrations, so these tests also cover the migrations themselves.
package integration

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marketplace/fulfillment/internal/infrastructure/config"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/migration"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/marketplace/fulfillment/migrations"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"go.uber.org/zap"
)

// tables are truncated between tests, children first
var tables = []string{
	"step_log_entries",
	"workflow_executions",
	"workflow_definitions",
	"inventory_allocations",
	"inventory_stock",
	"risk_assessments",
	"behavioral_profiles",
	"wallet_transfers",
}

var (
	sharedMu        sync.Mutex
	sharedContainer *tcpostgres.PostgresContainer
	sharedDSN       string
)

// TestDB is a connection to the shared migrated database
type TestDB struct {
	*persistence.Database
	DSN string
	t   *testing.T
}

// NewTestDB connects to the shared container, starting and migrating it on
// first use, and empties every table. Tests are skipped with -short.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker; skipped with -short")
	}

	dsn := sharedDatabase(t)

	opts := []persistence.DatabaseOption{}
	if os.Getenv("TEST_DB_DEBUG") != "" {
		opts = append(opts, persistence.WithLogger(
			logger.NewGormLogger(zap.NewExample(), logger.MapGormLogLevel("debug")),
		))
	}
	db, err := persistence.Open(gormpostgres.Open(dsn), &config.DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
	}, opts...)
	require.NoError(t, err, "connect to test database")

	tdb := &TestDB{Database: db, DSN: dsn, t: t}
	tdb.CleanTables()
	t.Cleanup(func() {
		_ = db.Close()
	})
	return tdb
}

// CleanTables truncates every fulfillment table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	for _, table := range tables {
		err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error
		require.NoError(tdb.t, err, "truncate %s", table)
	}
}

func sharedDatabase(t *testing.T) string {
	t.Helper()
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedContainer != nil {
		return sharedDSN
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fulfillment_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "container connection string")

	m, err := migration.NewFromFS(dsn, migrations.FS, zap.NewNop())
	require.NoError(t, err, "open migrations")
	require.NoError(t, m.Up(), "apply migrations")
	require.NoError(t, m.Close())

	sharedContainer = container
	sharedDSN = dsn
	return dsn
}

// terminateSharedContainer stops the container started by NewTestDB
func terminateSharedContainer() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedContainer == nil {
		return
	}
	if err := sharedContainer.Terminate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "terminate postgres container: %v\n", err)
	}
	sharedContainer = nil
}
