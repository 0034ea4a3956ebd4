package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Email     EmailConfig     `yaml:"email"`
	JWT       JWTConfig       `yaml:"jwt"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
	Billing   BillingConfig   `yaml:"billing"`
	Events    EventsConfig    `yaml:"events"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC health listener settings
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

// EmailConfig contains SendGrid or SMTP settings. With neither configured
// mail is logged instead of sent.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPUser       string `yaml:"smtp_user"`
	SMTPPassword   string `yaml:"smtp_password"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// StorageConfig contains receipt document storage settings
type StorageConfig struct {
	Type       string `yaml:"type"`        // "local"
	ReceiptDir string `yaml:"receipt_dir"` // For local storage
	BaseURL    string `yaml:"base_url"`    // Public base URL for download links
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// BillingConfig contains receipt provider and webhook settings
type BillingConfig struct {
	WebhookSecret            string          `yaml:"webhook_secret"`
	WebhookProvider          string          `yaml:"webhook_provider"`
	ProviderTimeoutSeconds   int             `yaml:"provider_timeout_seconds"`
	ReceiptRetryAfterMinutes int             `yaml:"receipt_retry_after_minutes"`
	Ledgerly                 ProviderBackend `yaml:"ledgerly"`
	Tillpoint                ProviderBackend `yaml:"tillpoint"`
}

// ProviderBackend is the shared endpoint of an external receipt provider;
// credentials live on each account
type ProviderBackend struct {
	BaseURL string `yaml:"base_url"`
}

// EventsConfig selects the side-effect bus
type EventsConfig struct {
	Transport    string   `yaml:"transport"` // "inline", "rabbitmq" or "kafka"
	RabbitMQURL  string   `yaml:"rabbitmq_url"`
	Queue        string   `yaml:"queue"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`
	BufferSize   int      `yaml:"buffer_size"`
	Workers      int      `yaml:"workers"`
}

// RedisConfig is optional; provider tokens are cached in memory without it
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	SendDebtReminders    string `yaml:"send_debt_reminders"`
	RetryMissingReceipts string `yaml:"retry_missing_receipts"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes, then applies env overrides and defaults
func Parse(data []byte) (*Config, error) {
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

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.SendGridAPIKey = val
	}
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.Email.SMTPHost = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.Email.SMTPPassword = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Email.FromEmail = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Billing
	if val := os.Getenv("BILLING_WEBHOOK_SECRET"); val != "" {
		c.Billing.WebhookSecret = val
	}

	// Events
	if val := os.Getenv("EVENTS_TRANSPORT"); val != "" {
		c.Events.Transport = val
	}
	if val := os.Getenv("RABBITMQ_URL"); val != "" {
		c.Events.RabbitMQURL = val
	}
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Events.KafkaBrokers = strings.Split(val, ",")
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
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
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
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

	if c.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing webhook secret is required")
	}
	if c.Billing.WebhookProvider == "" {
		c.Billing.WebhookProvider = "payments"
	}
	if c.Billing.ProviderTimeoutSeconds <= 0 {
		c.Billing.ProviderTimeoutSeconds = 10
	}
	if c.Billing.ReceiptRetryAfterMinutes <= 0 {
		c.Billing.ReceiptRetryAfterMinutes = 10
	}

	if c.Email.SMTPHost != "" && c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "local"
	}
	if c.Storage.ReceiptDir == "" {
		return fmt.Errorf("receipt directory is required")
	}

	switch c.Events.Transport {
	case "":
		c.Events.Transport = "inline"
	case "inline":
	case "rabbitmq":
		if c.Events.RabbitMQURL == "" {
			return fmt.Errorf("rabbitmq url is required for rabbitmq transport")
		}
	case "kafka":
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required for kafka transport")
		}
	default:
		return fmt.Errorf("unknown events transport: %s", c.Events.Transport)
	}
	if c.Events.Queue == "" {
		c.Events.Queue = "ledger.side-effects"
	}
	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = "ledger.side-effects"
	}
	if c.Events.KafkaGroupID == "" {
		c.Events.KafkaGroupID = "ledger-dispatcher"
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 256
	}
	if c.Events.Workers <= 0 {
		c.Events.Workers = 4
	}

	// Scheduler defaults
	if c.Scheduler.SendDebtReminders == "" {
		c.Scheduler.SendDebtReminders = "0 0 8 * * *" // 8 AM UTC
	}
	if c.Scheduler.RetryMissingReceipts == "" {
		c.Scheduler.RetryMissingReceipts = "0 */30 * * * *" // every 30 minutes
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

// ProviderTimeout bounds every outbound receipt provider call
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Billing.ProviderTimeoutSeconds) * time.Second
}

// ReceiptRetryAfter is how long a settled payment waits before the retry job picks it up
func (c *Config) ReceiptRetryAfter() time.Duration {
	return time.Duration(c.Billing.ReceiptRetryAfterMinutes) * time.Minute
}

// AccessTokenTTL is the lifetime of issued access tokens
func (c *Config) AccessTokenTTL() time.Duration {
	if c.JWT.AccessTokenExpiry <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}
