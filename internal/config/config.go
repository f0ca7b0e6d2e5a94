package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Notification drivers
const (
	NotifyMemory = "memory"
	NotifyNATS   = "nats"
)

// Document serving modes
const (
	DocumentRedirect = "redirect"
	DocumentProxy    = "proxy"
)

// Config holds application configuration
type Config struct {
	Port       string        `yaml:"port" env:"PORT" env-default:"8080"`
	LogLevel   string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version    string        `yaml:"version" env:"APP_VERSION" env-default:"1.0.0"`
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	SocketOnly bool          `yaml:"socket_only" env:"SOCKET_ONLY" env-default:"false"`

	Store   StoreConfig   `yaml:"store"`
	S3      S3Config      `yaml:"s3"`
	Notify  NotifyConfig  `yaml:"notify"`
	Redis   RedisConfig   `yaml:"redis"`
	HTTP    HTTPConfig    `yaml:"http"`
	Mail    MailConfig    `yaml:"mail"`
	Sweeper SweeperConfig `yaml:"sweeper"`
}

// StoreConfig selects and addresses the claim/user store
type StoreConfig struct {
	Driver        string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres"`
	DBConn        string `yaml:"db_conn" env:"DB_CONN" env-default:"host=localhost port=5436 user=test password=test dbname=claims sslmode=disable"`
	MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE" env-default:"claims"`
}

// S3Config addresses the document bucket
type S3Config struct {
	Bucket         string        `yaml:"bucket" env:"S3_BUCKET" env-default:"claims-documents"`
	Region         string        `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint       string        `yaml:"endpoint" env:"AWS_ENDPOINT_URL"`
	AccessKey      string        `yaml:"access_key" env:"AWS_ACCESS_KEY_ID"`
	SecretKey      string        `yaml:"secret_key" env:"AWS_SECRET_ACCESS_KEY"`
	PublicBaseURL  string        `yaml:"public_base_url" env:"S3_PUBLIC_BASE_URL"`
	DocumentMode   string        `yaml:"document_mode" env:"DOCUMENT_MODE" env-default:"redirect"`
	PresignTTL     time.Duration `yaml:"presign_ttl" env:"PRESIGN_TTL" env-default:"15m"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"5242880"`
}

// NotifyConfig selects the notification bus
type NotifyConfig struct {
	Driver  string `yaml:"driver" env:"NOTIFY_DRIVER" env-default:"memory"`
	NATSURL string `yaml:"nats_url" env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`
}

// RedisConfig enables the user cache when URL is set
type RedisConfig struct {
	URL string        `yaml:"url" env:"REDIS_URL"`
	TTL time.Duration `yaml:"ttl" env:"USER_CACHE_TTL" env-default:"5m"`
}

// HTTPConfig holds cross-origin, proxy and rate limit settings.
// Forwarding headers are honored only from TrustedProxies (CIDRs or addresses).
type HTTPConfig struct {
	CORSOrigins    []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	AuthRateLimit  float64  `yaml:"auth_rate_limit" env:"AUTH_RATE_LIMIT" env-default:"5"`
	AuthRateBurst  int      `yaml:"auth_rate_burst" env:"AUTH_RATE_BURST" env-default:"10"`
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUSTED_PROXIES" env-separator:","`
}

// MailConfig configures decision emails. Mail is disabled when neither SMTP
// nor SendGrid is configured.
type MailConfig struct {
	SMTPHost       string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort       string `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUsername   string `yaml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword   string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	SenderEmail    string `yaml:"sender_email" env:"SENDER_EMAIL" env-default:"claims@localhost"`
	SendGridAPIKey string `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
}

// Enabled reports whether any mail transport is configured
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" || m.SendGridAPIKey != ""
}

// SweeperConfig schedules the orphan document sweep
type SweeperConfig struct {
	Schedule string        `yaml:"schedule" env:"SWEEP_SCHEDULE" env-default:"@every 1h"`
	Grace    time.Duration `yaml:"grace" env:"SWEEP_GRACE" env-default:"1h"`
}

// NewConfig loads configuration from CONFIG_PATH (if set) and environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{}

	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}

	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
		if c.Store.DBConn == "" {
			return fmt.Errorf("DB_CONN is required")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Notify.Driver {
	case NotifyMemory, NotifyNATS:
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER %q", c.Notify.Driver)
	}
	if c.SocketOnly && c.Notify.Driver != NotifyNATS {
		return fmt.Errorf("SOCKET_ONLY requires NOTIFY_DRIVER=nats")
	}

	switch c.S3.DocumentMode {
	case DocumentRedirect, DocumentProxy:
	default:
		return fmt.Errorf("unknown DOCUMENT_MODE %q", c.S3.DocumentMode)
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.S3.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	for i, o := range c.HTTP.CORSOrigins {
		c.HTTP.CORSOrigins[i] = strings.TrimSpace(o)
	}
	return nil
}
