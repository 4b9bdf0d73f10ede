package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/config"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/database"
)

// Config holds all configuration for the accounts service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"gamelog-accounts"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8000"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`

	// PostgreSQL
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"gamelog"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"gamelog"`
	DBName     string `env:"DB_NAME" envDefault:"gamelog"`
	DBSSLMode  string `env:"DB_SSL_MODE" envDefault:"disable"`
	DBMaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// Tokens
	SecretKey                string `env:"SECRET_KEY,required"`
	Algorithm                string `env:"ALGORITHM" envDefault:"HS256"`
	AccessTokenExpireMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"60"`
	TokenLeewaySeconds       int    `env:"TOKEN_LEEWAY_SECONDS" envDefault:"0"`
	ConfirmTokenExpireHours  int    `env:"CONFIRM_TOKEN_EXPIRE_HOURS" envDefault:"24"`
	ConfirmTokenSingleUse    bool   `env:"CONFIRM_TOKEN_SINGLE_USE" envDefault:"false"`
	RememberTokenExpireDays  int    `env:"REMEMBER_TOKEN_EXPIRE_DAYS" envDefault:"30"`
	RememberCookieSecure     bool   `env:"REMEMBER_COOKIE_SECURE" envDefault:"false"`
	BcryptCost               int    `env:"BCRYPT_COST" envDefault:"12"`

	ResendConfirmationOnInactiveLogin bool `env:"RESEND_CONFIRMATION_ON_INACTIVE_LOGIN" envDefault:"false"`

	// Mail
	EmailConfirmURL string `env:"EMAIL_CONFIRM_URL" envDefault:"http://localhost:8000/api/v1/auth/confirm"`
	MailBackend     string `env:"MAIL_BACKEND" envDefault:"log"`
	MailFrom        string `env:"MAIL_FROM" envDefault:"no-reply@gamelog.local"`
	MailFromName    string `env:"MAIL_FROM_NAME" envDefault:"GameLog"`
	MailServer      string `env:"MAIL_SERVER" envDefault:"localhost"`
	MailPort        int    `env:"MAIL_PORT" envDefault:"587"`
	MailUsername    string `env:"MAIL_USERNAME"`
	MailPassword    string `env:"MAIL_PASSWORD"`
	MailUseTLS      bool   `env:"MAIL_USE_TLS" envDefault:"true"`
	MailWorkers     int    `env:"MAIL_WORKERS" envDefault:"2"`
	MailQueueSize   int    `env:"MAIL_QUEUE_SIZE" envDefault:"100"`
	MailViaKafka    bool   `env:"MAIL_VIA_KAFKA" envDefault:"false"`
	SendGridAPIKey  string `env:"SENDGRID_API_KEY"`
	SendGridBaseURL string `env:"SENDGRID_BASE_URL" envDefault:"https://api.sendgrid.com"`

	// Redis
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	TracingEnabled    bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"OTEL_TRACES_SAMPLE_RATE" envDefault:"1.0"`
}

const minSecretLength = 32

var mailBackends = map[string]bool{"log": true, "smtp": true, "sendgrid": true}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load accounts config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must not be empty")
	}
	// Short development secrets are tolerated; anywhere else they are refused.
	if !c.IsDevelopment() && len(c.SecretKey) < minSecretLength {
		return fmt.Errorf("SECRET_KEY must be at least %d characters long, got %d", minSecretLength, len(c.SecretKey))
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported ALGORITHM %q: want HS256, HS384 or HS512", c.Algorithm)
	}
	if c.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.ConfirmTokenExpireHours <= 0 {
		return fmt.Errorf("CONFIRM_TOKEN_EXPIRE_HOURS must be positive")
	}
	if c.RememberTokenExpireDays <= 0 {
		return fmt.Errorf("REMEMBER_TOKEN_EXPIRE_DAYS must be positive")
	}
	if c.TokenLeewaySeconds < 0 {
		return fmt.Errorf("TOKEN_LEEWAY_SECONDS must not be negative")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if !mailBackends[c.MailBackend] {
		return fmt.Errorf("unsupported MAIL_BACKEND %q", c.MailBackend)
	}
	if c.MailBackend == "sendgrid" && c.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required when MAIL_BACKEND=sendgrid")
	}
	if c.ConfirmTokenSingleUse && !c.RedisEnabled {
		return fmt.Errorf("CONFIRM_TOKEN_SINGLE_USE requires REDIS_ENABLED")
	}
	if c.MailViaKafka && !c.KafkaEnabled {
		return fmt.Errorf("MAIL_VIA_KAFKA requires KAFKA_ENABLED")
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

func (c *Config) ConfirmTokenTTL() time.Duration {
	return time.Duration(c.ConfirmTokenExpireHours) * time.Hour
}

func (c *Config) RememberTokenTTL() time.Duration {
	return time.Duration(c.RememberTokenExpireDays) * 24 * time.Hour
}

func (c *Config) TokenLeeway() time.Duration {
	return time.Duration(c.TokenLeewaySeconds) * time.Second
}

// Postgres returns the pool configuration for pkg/database.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.DBHost
	pg.Port = c.DBPort
	pg.User = c.DBUser
	pg.Password = c.DBPassword
	pg.DBName = c.DBName
	pg.SSLMode = c.DBSSLMode
	pg.MaxConns = c.DBMaxConns
	return pg
}

// Redis returns the client configuration for pkg/database.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}
