package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, config.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, 20, cfg.PerPage)
	assert.Equal(t, 10*time.Second, cfg.StorageTimeout())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL())
	assert.Zero(t, cfg.SweepInterval())
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.Origins())

	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, "10000", rules.MinLoanAmount.String())
	assert.Equal(t, "1000000", rules.MaxLoanAmount.String())
	assert.Equal(t, "10", rules.DefaultInterestRate.String())
	assert.Equal(t, 24, rules.MaxDuration)
	assert.Equal(t, "₦", rules.CurrencySymbol)

	penalty, err := cfg.Penalty()
	require.NoError(t, err)
	assert.Equal(t, "5", penalty.RatePercent.String())
	assert.Equal(t, 7, penalty.GraceDays)
	assert.Equal(t, "Kobo", cfg.Currency().Minor)
}

func TestLoad_EnvOverridesDotEnv(t *testing.T) {
	// GIVEN: A .env file and a conflicting environment variable
	// THEN: The environment wins; the file fills the rest

	dir := t.TempDir()
	env := "PER_PAGE=50\nMAX_LOAN_AMOUNT=500000\nJWT_SECRET=from-dotenv-secret-value\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("PER_PAGE", "5")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PerPage)
	assert.Equal(t, "500000", cfg.MaxLoanAmount)
	assert.Equal(t, "from-dotenv-secret-value", cfg.JWTSecret)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("MIN_LOAN_AMOUNT", "abc")
	t.Setenv("OVERPAYMENT_POLICY", "ignore")
	t.Setenv("PER_PAGE", "0")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"DB_DRIVER", "JWT_SECRET", "MIN_LOAN_AMOUNT", "OVERPAYMENT_POLICY", "PER_PAGE"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_MySQLNeedsDSN(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("DB_DRIVER", "mysql")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "MYSQL_DSN")

	cfg.MySQLDSN = "user:pass@tcp(localhost:3306)/loans?parseTime=true"
	assert.NoError(t, cfg.Validate())
}

func TestRules_BoundsMustBeOrdered(t *testing.T) {
	t.Setenv("MIN_DURATION_MONTHS", "12")
	t.Setenv("MAX_DURATION_MONTHS", "6")

	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	_, err = cfg.Rules()
	assert.ErrorContains(t, err, "duration bounds")
}
