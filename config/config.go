/*
Package config loads server settings from the environment.

SOURCES (highest wins):
  1. Process environment
  2. Optional .env file in the directory passed to Load
  3. Defaults below

Lending settings are kept as strings until Validate parses them, so a
malformed amount is a startup error rather than a silent zero.
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/warp/loan-ledger/application"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/loancalc"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all settings. Field tags name the environment variables.
type Config struct {
	ServerAddr     string `mapstructure:"SERVER_ADDR"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFormat      string `mapstructure:"LOG_FORMAT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"` // comma separated

	DBDriver              string `mapstructure:"DB_DRIVER"`
	SQLitePath            string `mapstructure:"SQLITE_PATH"`
	MySQLDSN              string `mapstructure:"MYSQL_DSN"`
	StorageTimeoutSeconds int    `mapstructure:"STORAGE_TIMEOUT_SECONDS"`

	RedisURL              string `mapstructure:"REDIS_URL"`
	IdempotencyTTLSeconds int    `mapstructure:"IDEMPOTENCY_TTL_SECONDS"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	DefaultInterestRate string `mapstructure:"DEFAULT_INTEREST_RATE"`
	PenaltyRate         string `mapstructure:"PENALTY_RATE"`
	GraceDays           int    `mapstructure:"GRACE_DAYS"`
	MinLoanAmount       string `mapstructure:"MIN_LOAN_AMOUNT"`
	MaxLoanAmount       string `mapstructure:"MAX_LOAN_AMOUNT"`
	MinDuration         int    `mapstructure:"MIN_DURATION_MONTHS"`
	MaxDuration         int    `mapstructure:"MAX_DURATION_MONTHS"`
	MinAge              int    `mapstructure:"MIN_AGE"`
	CurrencySymbol      string `mapstructure:"CURRENCY_SYMBOL"`
	CurrencyMajor       string `mapstructure:"CURRENCY_MAJOR"`
	CurrencyMinor       string `mapstructure:"CURRENCY_MINOR"`
	PerPage             int    `mapstructure:"PER_PAGE"`
	OverpaymentPolicy   string `mapstructure:"OVERPAYMENT_POLICY"`

	// SweepIntervalMinutes is how often loans are checked for completion
	// or default. 0 disables the sweep.
	SweepIntervalMinutes int `mapstructure:"SWEEP_INTERVAL_MINUTES"`
}

var defaults = map[string]any{
	"SERVER_ADDR":             ":8080",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "text",
	"ALLOWED_ORIGINS":         "http://localhost:5173,http://localhost:8080",
	"DB_DRIVER":               DriverSQLite,
	"SQLITE_PATH":             "loan-ledger.db",
	"MYSQL_DSN":               "",
	"STORAGE_TIMEOUT_SECONDS": 10,
	"REDIS_URL":               "",
	"IDEMPOTENCY_TTL_SECONDS": 86400,
	"RABBITMQ_URL":            "",
	"EVENTS_EXCHANGE":         "loan_ledger.events",
	"JWT_SECRET":              "",
	"JWT_ISSUER":              "loan-ledger",
	"DEFAULT_INTEREST_RATE":   "10",
	"PENALTY_RATE":            "5",
	"GRACE_DAYS":              7,
	"MIN_LOAN_AMOUNT":         "10000",
	"MAX_LOAN_AMOUNT":         "1000000",
	"MIN_DURATION_MONTHS":     1,
	"MAX_DURATION_MONTHS":     24,
	"MIN_AGE":                 18,
	"CURRENCY_SYMBOL":         loancalc.Naira.Symbol,
	"CURRENCY_MAJOR":          loancalc.Naira.Major,
	"CURRENCY_MINOR":          loancalc.Naira.Minor,
	"PER_PAGE":                20,
	"OVERPAYMENT_POLICY":      string(ledger.OverpaymentReject),
	"SWEEP_INTERVAL_MINUTES":  0,
}

// Load reads the environment and an optional .env file in dir. The result
// is not validated; call Validate.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("failed to read config file; using environment values", "component", "config", "error", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &c, nil
}

// Validate checks ranges and parses the lending settings.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			add("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMySQL:
		if strings.TrimSpace(c.MySQLDSN) == "" {
			add("MYSQL_DSN is required for the mysql driver")
		}
	default:
		add("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.ServerAddr == "" {
		add("SERVER_ADDR is required")
	}
	if c.StorageTimeoutSeconds <= 0 {
		add("STORAGE_TIMEOUT_SECONDS must be positive")
	}
	if c.IdempotencyTTLSeconds <= 0 {
		add("IDEMPOTENCY_TTL_SECONDS must be positive")
	}
	if len(c.JWTSecret) < 16 {
		add("JWT_SECRET must be at least 16 characters")
	}
	if c.PerPage <= 0 {
		add("PER_PAGE must be positive")
	}
	if c.SweepIntervalMinutes < 0 {
		add("SWEEP_INTERVAL_MINUTES cannot be negative")
	}
	if c.GraceDays < 0 {
		add("GRACE_DAYS cannot be negative")
	}
	if !ledger.OverpaymentPolicy(c.OverpaymentPolicy).Valid() {
		add("unknown OVERPAYMENT_POLICY %q", c.OverpaymentPolicy)
	}
	if _, err := c.Rules(); err != nil {
		add("%v", err)
	}
	if _, err := c.Penalty(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Rules returns the validator bounds.
func (c *Config) Rules() (application.Rules, error) {
	rate, err := parse("DEFAULT_INTEREST_RATE", c.DefaultInterestRate)
	if err != nil {
		return application.Rules{}, err
	}
	lo, err := parse("MIN_LOAN_AMOUNT", c.MinLoanAmount)
	if err != nil {
		return application.Rules{}, err
	}
	hi, err := parse("MAX_LOAN_AMOUNT", c.MaxLoanAmount)
	if err != nil {
		return application.Rules{}, err
	}
	switch {
	case rate.IsNegative():
		return application.Rules{}, errors.New("DEFAULT_INTEREST_RATE cannot be negative")
	case !lo.IsPositive() || lo.GreaterThan(hi):
		return application.Rules{}, fmt.Errorf("loan amount bounds %s..%s are invalid", lo, hi)
	case c.MinDuration < 1 || c.MinDuration > c.MaxDuration:
		return application.Rules{}, fmt.Errorf("duration bounds %d..%d are invalid", c.MinDuration, c.MaxDuration)
	case c.MinAge < 0:
		return application.Rules{}, errors.New("MIN_AGE cannot be negative")
	}
	return application.Rules{
		MinLoanAmount:       lo,
		MaxLoanAmount:       hi,
		MinDuration:         c.MinDuration,
		MaxDuration:         c.MaxDuration,
		DefaultInterestRate: rate,
		MinAge:              c.MinAge,
		CurrencySymbol:      c.CurrencySymbol,
	}, nil
}

// PenaltyTerms is the late-payment policy.
type PenaltyTerms struct {
	RatePercent decimal.Decimal
	GraceDays   int
}

// Penalty returns the late-payment policy.
func (c *Config) Penalty() (PenaltyTerms, error) {
	rate, err := parse("PENALTY_RATE", c.PenaltyRate)
	if err != nil {
		return PenaltyTerms{}, err
	}
	if rate.IsNegative() {
		return PenaltyTerms{}, errors.New("PENALTY_RATE cannot be negative")
	}
	return PenaltyTerms{RatePercent: rate, GraceDays: c.GraceDays}, nil
}

// Currency returns the display currency.
func (c *Config) Currency() loancalc.Currency {
	return loancalc.Currency{Symbol: c.CurrencySymbol, Major: c.CurrencyMajor, Minor: c.CurrencyMinor}
}

func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutSeconds) * time.Second
}

func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

// Origins splits ALLOWED_ORIGINS.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parse(key, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q is not a number", key, value)
	}
	return d, nil
}
