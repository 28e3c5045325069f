package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type instrumentedRow struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&instrumentedRow{}))
	return db
}

func TestNewDBInstrumentation_Defaults(t *testing.T) {
	d, err := NewDBInstrumentation(DBInstrumentationConfig{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 200*time.Millisecond, d.config.SlowQueryThreshold)
	assert.Equal(t, "postgresql", d.config.DBSystem)
	assert.Equal(t, 15*time.Second, d.config.PoolStatsInterval)
	assert.Nil(t, d.queryTotal)
	assert.Equal(t, "fulfillment:db_instrumentation", d.Name())
}

func TestDBInstrumentation_QueryMetrics(t *testing.T) {
	reader, provider := newTestMeter(t)
	d, err := NewDBInstrumentation(DBInstrumentationConfig{SlowQueryThreshold: time.Hour}, provider.Meter("db"), zap.NewNop())
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, db.Use(d))

	require.NoError(t, db.Create(&instrumentedRow{Name: "a"}).Error)
	var rows []instrumentedRow
	require.NoError(t, db.Find(&rows).Error)
	require.NoError(t, db.Model(&instrumentedRow{}).Where("name = ?", "a").Update("name", "b").Error)

	data := collect(t, reader)
	assert.Equal(t, int64(3), sumInt(t, data["db_query_total"]))
	_, slow := data["db_slow_query_total"]
	assert.False(t, slow)
}

func TestDBInstrumentation_SlowQueryAndErrorOnSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reader, provider := newTestMeter(t)
	d, err := NewDBInstrumentation(DBInstrumentationConfig{SlowQueryThreshold: time.Nanosecond}, provider.Meter("db"), zap.NewNop())
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, db.Use(d))

	ctx, span := tp.Tracer("test").Start(context.Background(), "repo")
	err = db.WithContext(ctx).Exec("INSERT INTO missing_table (x) VALUES (1)").Error
	require.Error(t, err)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	var slowFlag bool
	for _, a := range spans[0].Attributes() {
		if a.Key == "db.slow_query" {
			slowFlag = a.Value.AsBool()
		}
	}
	assert.True(t, slowFlag)
	assert.Equal(t, int64(1), sumInt(t, collect(t, reader)["db_slow_query_total"]))
}

func TestDBInstrumentation_RecordNotFoundIsNotAnError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	d, err := NewDBInstrumentation(DBInstrumentationConfig{}, nil, zap.NewNop())
	require.NoError(t, err)
	db := openTestDB(t)
	require.NoError(t, db.Use(d))

	ctx, span := tp.Tracer("test").Start(context.Background(), "repo")
	var row instrumentedRow
	err = db.WithContext(ctx).First(&row, 999).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	span.End()

	assert.NotEqual(t, codes.Error, sr.Ended()[0].Status().Code)
}

func TestDBInstrumentation_WithTracing(t *testing.T) {
	d, err := NewDBInstrumentation(DBInstrumentationConfig{Tracing: true, DBSystem: "sqlite"}, nil, zap.NewNop())
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, db.Use(d))
	require.NoError(t, db.Create(&instrumentedRow{Name: "traced"}).Error)
}

func TestDBInstrumentation_PoolStats(t *testing.T) {
	reader, provider := newTestMeter(t)
	d, err := NewDBInstrumentation(DBInstrumentationConfig{PoolStatsInterval: 10 * time.Millisecond}, provider.Meter("db"), zap.NewNop())
	require.NoError(t, err)

	db := openTestDB(t)
	require.NoError(t, db.Use(d))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.StartPoolStatsCollection(ctx)

	require.Eventually(t, func() bool {
		_, ok := collect(t, reader)["db_pool_connections"]
		return ok
	}, time.Second, 10*time.Millisecond)

	d.Stop()
	d.Stop()
}

func TestDetectOperationType(t *testing.T) {
	cases := map[string]string{
		"select * from t":          "SELECT",
		"  INSERT INTO t VALUES()": "INSERT",
		"update t set x=1":         "UPDATE",
		"DELETE FROM t":            "DELETE",
		"PRAGMA foreign_keys":      "OTHER",
	}
	for query, want := range cases {
		assert.Equal(t, want, detectOperationType(query), query)
	}
}

func TestGormStatsProvider(t *testing.T) {
	db := openTestDB(t)
	for _, stmt := range []string{
		"CREATE TABLE workflow_executions (id TEXT, status TEXT)",
		"CREATE TABLE wallet_transfers (id TEXT, status TEXT)",
		"CREATE TABLE inventory_stock (product_id TEXT, reserved_stock INTEGER)",
		"INSERT INTO workflow_executions VALUES ('a','running'),('b','completed'),('c','running')",
		"INSERT INTO wallet_transfers VALUES ('a','pending'),('b','debited'),('c','completed')",
		"INSERT INTO inventory_stock VALUES ('p1', 4),('p2', 6)",
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	p := NewGormStatsProvider(db)
	ctx := context.Background()

	running, err := p.CountRunningExecutions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), running)

	inFlight, err := p.CountInFlightTransfers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inFlight)

	reserved, err := p.TotalReservedStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), reserved)
}
