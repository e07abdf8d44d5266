package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Email     EmailConfig     `yaml:"email"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Gateways  GatewaysConfig  `yaml:"gateways"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Booking   BookingConfig   `yaml:"booking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
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

// EmailConfig contains SendGrid settings. An empty API key disables delivery.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// GatewaysConfig groups the payment gateway credentials
type GatewaysConfig struct {
	PayPal PayPalConfig `yaml:"paypal"`
	Stripe StripeConfig `yaml:"stripe"`
	Bakong BakongConfig `yaml:"bakong"`
}

type PayPalConfig struct {
	ClientID  string `yaml:"client_id"`
	Secret    string `yaml:"secret"`
	BaseURL   string `yaml:"base_url"`
	WebhookID string `yaml:"webhook_id"`
	ReturnURL string `yaml:"return_url"`
	CancelURL string `yaml:"cancel_url"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// BakongConfig contains KHQR merchant data and polling bounds
type BakongConfig struct {
	BaseURL             string `yaml:"base_url"`
	Token               string `yaml:"token"`
	AccountID           string `yaml:"account_id"`
	MerchantName        string `yaml:"merchant_name"`
	MerchantCity        string `yaml:"merchant_city"`
	WebhookSecret       string `yaml:"webhook_secret"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	PollMaxAttempts     int    `yaml:"poll_max_attempts"`
}

// RedisConfig configures the webhook delivery claim cache. Empty Addr disables it.
type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	ClaimTTLMinutes int    `yaml:"claim_ttl_minutes"`
}

type RabbitMQConfig struct {
	URL         string `yaml:"url"`
	RefundQueue string `yaml:"refund_queue"`
	EventQueue  string `yaml:"event_queue"`
}

// CalendarConfig configures Google Calendar sync. Empty CredentialsFile disables it.
type CalendarConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
}

// BookingConfig contains booking policy knobs
type BookingConfig struct {
	Currency             string `yaml:"currency"`
	DepositPercent       int    `yaml:"deposit_percent"`
	PendingExpiryMinutes int    `yaml:"pending_expiry_minutes"`
	ModifyCutoffHours    int    `yaml:"modify_cutoff_hours"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	MilestoneReminders string `yaml:"milestone_reminders"`
	CheckInReminders   string `yaml:"check_in_reminders"`
	CompleteStays      string `yaml:"complete_stays"`
	ExpirePending      string `yaml:"expire_pending"`
	RetryRefunds       string `yaml:"retry_refunds"`
	ExpirePromos       string `yaml:"expire_promos"`
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

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}

	// Gateways
	if val := os.Getenv("PAYPAL_CLIENT_ID"); val != "" {
		c.Gateways.PayPal.ClientID = val
	}
	if val := os.Getenv("PAYPAL_SECRET"); val != "" {
		c.Gateways.PayPal.Secret = val
	}
	if val := os.Getenv("PAYPAL_WEBHOOK_ID"); val != "" {
		c.Gateways.PayPal.WebhookID = val
	}
	if val := os.Getenv("STRIPE_SECRET_KEY"); val != "" {
		c.Gateways.Stripe.SecretKey = val
	}
	if val := os.Getenv("STRIPE_WEBHOOK_SECRET"); val != "" {
		c.Gateways.Stripe.WebhookSecret = val
	}
	if val := os.Getenv("BAKONG_TOKEN"); val != "" {
		c.Gateways.Bakong.Token = val
	}
	if val := os.Getenv("BAKONG_ACCOUNT_ID"); val != "" {
		c.Gateways.Bakong.AccountID = val
	}
	if val := os.Getenv("BAKONG_WEBHOOK_SECRET"); val != "" {
		c.Gateways.Bakong.WebhookSecret = val
	}

	// Infrastructure
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}
	if val := os.Getenv("RABBITMQ_URL"); val != "" {
		c.RabbitMQ.URL = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Booking defaults
	if c.Booking.Currency == "" {
		c.Booking.Currency = "USD"
	}
	c.Booking.Currency = strings.ToUpper(c.Booking.Currency)
	if c.Booking.DepositPercent == 0 {
		c.Booking.DepositPercent = 50
	}
	if c.Booking.DepositPercent < 50 || c.Booking.DepositPercent > 70 {
		return fmt.Errorf("deposit percent must be between 50 and 70, got %d", c.Booking.DepositPercent)
	}
	if c.Booking.PendingExpiryMinutes == 0 {
		c.Booking.PendingExpiryMinutes = 15
	}
	if c.Booking.ModifyCutoffHours == 0 {
		c.Booking.ModifyCutoffHours = 48
	}

	// Gateway defaults
	if c.Gateways.PayPal.BaseURL == "" {
		c.Gateways.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if c.Gateways.Bakong.BaseURL == "" {
		c.Gateways.Bakong.BaseURL = "https://api-bakong.nbc.gov.kh"
	}
	if c.Gateways.Bakong.PollIntervalSeconds == 0 {
		c.Gateways.Bakong.PollIntervalSeconds = 5
	}
	if c.Gateways.Bakong.PollMaxAttempts == 0 {
		c.Gateways.Bakong.PollMaxAttempts = 60
	}

	if c.Redis.ClaimTTLMinutes == 0 {
		c.Redis.ClaimTTLMinutes = 60
	}
	if c.RabbitMQ.RefundQueue == "" {
		c.RabbitMQ.RefundQueue = "booking.refunds"
	}
	if c.RabbitMQ.EventQueue == "" {
		c.RabbitMQ.EventQueue = "booking.events"
	}
	if c.Calendar.CalendarID == "" {
		c.Calendar.CalendarID = "primary"
	}

	// Scheduler defaults
	if c.Scheduler.MilestoneReminders == "" {
		c.Scheduler.MilestoneReminders = "0 0 8 * * *" // 8 AM UTC
	}
	if c.Scheduler.CheckInReminders == "" {
		c.Scheduler.CheckInReminders = "0 0 9 * * *" // 9 AM UTC
	}
	if c.Scheduler.CompleteStays == "" {
		c.Scheduler.CompleteStays = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.ExpirePending == "" {
		c.Scheduler.ExpirePending = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.RetryRefunds == "" {
		c.Scheduler.RetryRefunds = "0 0 * * * *" // hourly
	}
	if c.Scheduler.ExpirePromos == "" {
		c.Scheduler.ExpirePromos = "0 5 0 * * *" // 12:05 AM UTC
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

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
