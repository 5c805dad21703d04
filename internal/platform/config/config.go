// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the full process configuration. Every section maps to a prefixed
// group of environment variables, e.g. STRIPE_API_KEY.
type Config struct {
	HTTP         HTTPConfig         `envPrefix:"HTTP_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Postgres     PostgresConfig     `envPrefix:"POSTGRES_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Kafka        KafkaConfig        `envPrefix:"KAFKA_"`
	Broker       BrokerConfig       `envPrefix:"BROKER_"`
	Stripe       StripeConfig       `envPrefix:"STRIPE_"`
	SMTP         SMTPConfig         `envPrefix:"SMTP_"`
	Notification NotificationConfig `envPrefix:"NOTIFY_"`
	Directory    DirectoryConfig    `envPrefix:"DIRECTORY_"`
	Admin        AdminConfig        `envPrefix:"ADMIN_"`
	Outbox       OutboxConfig       `envPrefix:"OUTBOX_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATE_LIMIT_"`
}

type HTTPConfig struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// PostgresConfig selects the ledger backend: an empty URL keeps state in memory.
type PostgresConfig struct {
	URL          string        `env:"URL"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	TxTimeout    time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig enables the shared dedup store; an empty URL uses process memory.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

type KafkaConfig struct {
	Brokers  []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	ClientID string   `env:"CLIENT_ID" envDefault:"clubpay"`
}

// BrokerConfig selects the message broker and its retry policy.
// MaxMessageBytes caps event payloads below the broker's record limit.
type BrokerConfig struct {
	Backend         string        `env:"BACKEND" envDefault:"memory"`
	TopologyFile    string        `env:"TOPOLOGY_FILE"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff    time.Duration `env:"RETRY_BACKOFF" envDefault:"2s"`
	MaxMessageBytes int           `env:"MAX_MESSAGE_BYTES" envDefault:"921600"`
}

type StripeConfig struct {
	APIKey                    string            `env:"API_KEY"`
	DonationWebhookSecret     string            `env:"DONATION_WEBHOOK_SECRET"`
	SubscriptionWebhookSecret string            `env:"SUBSCRIPTION_WEBHOOK_SECRET"`
	SignatureTolerance        time.Duration     `env:"SIGNATURE_TOLERANCE" envDefault:"5m"`
	PlanPrices                map[string]string `env:"PLAN_PRICES" envSeparator:"," envKeyValSeparator:":"`
	SuccessURL                string            `env:"SUCCESS_URL" envDefault:"http://localhost:3000/support/thanks"`
	CancelURL                 string            `env:"CANCEL_URL" envDefault:"http://localhost:3000/support"`
	DonationProductName       string            `env:"DONATION_PRODUCT_NAME" envDefault:"Club donation"`
	MinDonationAmount         int64             `env:"MIN_DONATION_AMOUNT" envDefault:"100"`
	AllowedDonationCurrencies []string          `env:"DONATION_CURRENCIES" envSeparator:"," envDefault:"ron,eur"`
}

// SMTPConfig configures the outbound relay; an empty Host logs messages instead.
type SMTPConfig struct {
	Host         string        `env:"HOST"`
	Port         int           `env:"PORT" envDefault:"587"`
	Username     string        `env:"USERNAME"`
	Password     string        `env:"PASSWORD"`
	UseTLS       bool          `env:"USE_TLS" envDefault:"false"`
	UseSTARTTLS  bool          `env:"USE_STARTTLS" envDefault:"true"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"20s"`
}

type NotificationConfig struct {
	FromAddress   string        `env:"FROM_ADDRESS" envDefault:"no-reply@club.local"`
	FromName      string        `env:"FROM_NAME" envDefault:"Club"`
	ContactInbox  string        `env:"CONTACT_INBOX" envDefault:"office@club.local"`
	SiteURL       string        `env:"SITE_URL" envDefault:"http://localhost:3000"`
	Pacing        time.Duration `env:"PACING" envDefault:"200ms"`
	SendTimeout   time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`
	DedupTTL      time.Duration `env:"DEDUP_TTL" envDefault:"72h"`
	DedupCapacity int           `env:"DEDUP_CAPACITY" envDefault:"100000"`
}

type DirectoryConfig struct {
	URL              string        `env:"URL"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"5s"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"3"`
	Cooldown         time.Duration `env:"COOLDOWN" envDefault:"1m"`
}

type AdminConfig struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY"`
	JWTIssuer     string `env:"JWT_ISSUER"`
}

// OutboxConfig tunes the relay. Entries failing MaxAttempts publishes are
// parked; zero keeps retrying forever.
type OutboxConfig struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	Retention    time.Duration `env:"RETENTION" envDefault:"168h"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"10"`
}

// RateLimitConfig caps public requests per client IP per Window. A zero limit
// disables that route's limit.
type RateLimitConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
	Contact  int           `env:"CONTACT" envDefault:"5"`
	Checkout int           `env:"CHECKOUT" envDefault:"20"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds a Config with explicit env options (tests pass Environment).
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Broker.Backend {
	case "memory", "kafka":
	default:
		errs = append(errs, fmt.Errorf("BROKER_BACKEND must be memory or kafka, got %q", c.Broker.Backend))
	}
	if c.Broker.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka backend"))
	}
	if c.Notification.Pacing < 0 {
		errs = append(errs, errors.New("NOTIFY_PACING cannot be negative"))
	}
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.Broker.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("BROKER_MAX_MESSAGE_BYTES must be positive"))
	}
	if c.RateLimit.Enabled && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// WebhookSecret returns the signing secret for a webhook flow.
func (s StripeConfig) WebhookSecret(flow string) string {
	if flow == "subscriptions" {
		return s.SubscriptionWebhookSecret
	}
	return s.DonationWebhookSecret
}
