package config

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "fulfillment", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "fulfillment", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, 10*time.Second, cfg.Workflow.StepTimeout)
		assert.True(t, cfg.Workflow.SeedDefaults)
		assert.Equal(t, 70, cfg.Risk.BlockThreshold)
		assert.Equal(t, 4, cfg.Jobs.Workers)
		assert.Equal(t, "best_coverage", cfg.Shipping.DefaultPolicy)
		assert.NotEmpty(t, cfg.Shipping.Couriers)
		assert.True(t, decimal.NewFromInt(150000).Equal(cfg.Saga.ProviderLimits["mpesa"]))
	})

	t.Run("loads values from environment variables with FULFILLMENT prefix", func(t *testing.T) {
		t.Setenv("FULFILLMENT_APP_NAME", "test-app")
		t.Setenv("FULFILLMENT_APP_PORT", "9000")
		t.Setenv("FULFILLMENT_DATABASE_HOST", "testdb.local")
		t.Setenv("FULFILLMENT_DATABASE_PORT", "5433")
		t.Setenv("FULFILLMENT_WORKFLOW_STEP_TIMEOUT", "3s")
		t.Setenv("FULFILLMENT_WORKFLOW_SEED_DEFAULTS", "false")
		t.Setenv("FULFILLMENT_RISK_BLOCK_THRESHOLD", "85")
		t.Setenv("FULFILLMENT_SAGA_BASE_FEE", "1.25")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 3*time.Second, cfg.Workflow.StepTimeout)
		assert.False(t, cfg.Workflow.SeedDefaults)
		assert.Equal(t, 85, cfg.Risk.BlockThreshold)
		assert.True(t, decimal.RequireFromString("1.25").Equal(cfg.Saga.BaseFee))
	})

	t.Run("rejects invalid decimal", func(t *testing.T) {
		t.Setenv("FULFILLMENT_SAGA_MAX_FEE", "lots")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "saga.max_fee")
	})

	t.Run("rejects out of range block threshold", func(t *testing.T) {
		t.Setenv("FULFILLMENT_RISK_BLOCK_THRESHOLD", "150")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "risk.block_threshold")
	})

	t.Run("fails when max idle conns exceeds max open conns", func(t *testing.T) {
		t.Setenv("FULFILLMENT_DATABASE_MAX_OPEN_CONNS", "5")
		t.Setenv("FULFILLMENT_DATABASE_MAX_IDLE_CONNS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
	})
}

func TestFromViper_TOML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
[saga]
base_fee = "0.75"
fee_percentage = "0.02"
max_fee = "10"

[saga.provider_limits]
mpesa = "5000"

[risk.mobile_money_norms]
mpesa = "2500"

[shipping]
default_policy = "cheapest"

[[shipping.couriers]]
name = "rider"
eta_days = 1
base_cost = "120"
coverage = { nairobi = 90 }
`)))

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("0.75").Equal(cfg.Saga.BaseFee))
	assert.True(t, decimal.RequireFromString("0.02").Equal(cfg.Saga.FeePercentage))
	assert.True(t, decimal.NewFromInt(5000).Equal(cfg.Saga.ProviderLimits["mpesa"]))
	assert.Len(t, cfg.Saga.ProviderLimits, 1)
	assert.True(t, decimal.NewFromInt(2500).Equal(cfg.Risk.MobileMoneyNorms["mpesa"]))
	assert.Equal(t, "cheapest", cfg.Shipping.DefaultPolicy)
	require.Len(t, cfg.Shipping.Couriers, 1)
	assert.Equal(t, "rider", cfg.Shipping.Couriers[0].Name)
	assert.Equal(t, 90, cfg.Shipping.Couriers[0].Coverage["nairobi"])
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("FULFILLMENT_APP_ENV", "production")
		t.Setenv("FULFILLMENT_DATABASE_PASSWORD", "secure-password")
		t.Setenv("FULFILLMENT_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		t.Setenv("FULFILLMENT_APP_ENV", "production")
		t.Setenv("FULFILLMENT_DATABASE_SSLMODE", "require")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("FULFILLMENT_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
