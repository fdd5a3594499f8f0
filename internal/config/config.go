package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Billing   BillingConfig   `yaml:"billing"`
	LateFee   LateFeeConfig   `yaml:"late_fee"`
	Gateways  GatewaysConfig  `yaml:"gateways"`
	Station   StationConfig   `yaml:"station"`
	Notify    NotifyConfig    `yaml:"notify"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// BillingConfig contains settlement and payment intent settings
type BillingConfig struct {
	Currency             string          `yaml:"currency"`
	PointsPerUnit        int64           `yaml:"points_per_unit"`
	TopupIncrement       decimal.Decimal `yaml:"topup_increment"`
	IntentTTLMinutes     int             `yaml:"intent_ttl_minutes"`
	LedgerRetryAttempts  int             `yaml:"ledger_retry_attempts"`
	VerifyRetryAttempts  int             `yaml:"verify_retry_attempts"`
	VerifyBackoffSeconds int             `yaml:"verify_backoff_seconds"`
}

// LateFeeConfig contains overdue penalty settings
type LateFeeConfig struct {
	GracePeriodMinutes int64           `yaml:"grace_period_minutes"`
	HourlyRate         decimal.Decimal `yaml:"hourly_rate"`
	MaxDailyRate       decimal.Decimal `yaml:"max_daily_rate"`
}

// GatewayConfig contains one payment gateway's connection settings
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	MerchantID     string `yaml:"merchant_id"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type GatewaysConfig struct {
	Khalti GatewayConfig `yaml:"khalti"`
	Esewa  GatewayConfig `yaml:"esewa"`
	Stripe GatewayConfig `yaml:"stripe"`
}

// StationConfig contains the kiosk hardware gateway settings
type StationConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// NotifyConfig contains notification channel settings
type NotifyConfig struct {
	SendgridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ExpireStaleIntents   string `yaml:"expire_stale_intents"`
	SendOverdueReminders string `yaml:"send_overdue_reminders"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Gateways
	if val := os.Getenv("KHALTI_SECRET_KEY"); val != "" {
		c.Gateways.Khalti.SecretKey = val
	}
	if val := os.Getenv("ESEWA_SECRET_KEY"); val != "" {
		c.Gateways.Esewa.SecretKey = val
	}
	if val := os.Getenv("STRIPE_SECRET_KEY"); val != "" {
		c.Gateways.Stripe.SecretKey = val
	}

	// Station
	if val := os.Getenv("STATION_API_KEY"); val != "" {
		c.Station.APIKey = val
	}

	// Notify
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notify.SendgridAPIKey = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	// Billing defaults and validation
	if c.Billing.Currency == "" {
		c.Billing.Currency = "NPR"
	}
	if c.Billing.PointsPerUnit == 0 {
		c.Billing.PointsPerUnit = 10
	}
	if c.Billing.PointsPerUnit < 0 || 100%c.Billing.PointsPerUnit != 0 {
		return fmt.Errorf("billing points_per_unit must be a positive divisor of 100, got %d", c.Billing.PointsPerUnit)
	}
	if c.Billing.TopupIncrement.IsZero() {
		c.Billing.TopupIncrement = decimal.NewFromInt(100)
	}
	if c.Billing.TopupIncrement.IsNegative() {
		return fmt.Errorf("billing topup_increment must be positive, got %s", c.Billing.TopupIncrement)
	}
	if c.Billing.IntentTTLMinutes == 0 {
		c.Billing.IntentTTLMinutes = 30
	}
	if c.Billing.LedgerRetryAttempts == 0 {
		c.Billing.LedgerRetryAttempts = 3
	}
	if c.Billing.VerifyRetryAttempts == 0 {
		c.Billing.VerifyRetryAttempts = 3
	}
	if c.Billing.VerifyBackoffSeconds == 0 {
		c.Billing.VerifyBackoffSeconds = 1
	}

	// Late fee defaults and validation
	if c.LateFee.GracePeriodMinutes < 0 {
		return fmt.Errorf("late_fee grace_period_minutes must not be negative")
	}
	if c.LateFee.HourlyRate.IsNegative() || c.LateFee.MaxDailyRate.IsNegative() {
		return fmt.Errorf("late_fee rates must not be negative")
	}

	// Station defaults
	if c.Station.TimeoutSeconds == 0 {
		c.Station.TimeoutSeconds = 10
	}

	// Scheduler defaults
	if c.Scheduler.ExpireStaleIntents == "" {
		c.Scheduler.ExpireStaleIntents = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.SendOverdueReminders == "" {
		c.Scheduler.SendOverdueReminders = "0 0 * * * *" // hourly
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
