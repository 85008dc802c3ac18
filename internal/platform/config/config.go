package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string        `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSigningKey string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"mppchs"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"mppchs-api"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig configures Postgres. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout       time.Duration `env:"TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig configures the list cache. An empty URL selects the in-memory cache.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures lifecycle notifications. No brokers selects the
// log-only publisher.
type KafkaConfig struct {
	Brokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic      string   `env:"KAFKA_TOPIC" envDefault:"change-request-events"`
	Partitions int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"3"`
}

// CryptoConfig holds the base64 master key for sensitive field encryption.
type CryptoConfig struct {
	FieldEncryptionKey string `env:"FIELD_ENCRYPTION_KEY"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// ChangeRequestConfig tunes the change request service.
type ChangeRequestConfig struct {
	ListCacheTTL        time.Duration `env:"LIST_CACHE_TTL" envDefault:"30s"`
	LedgerRebuildPolicy string        `env:"LEDGER_REBUILD_POLICY" envDefault:"replace"`
}

// Config is the full service configuration.
type Config struct {
	Server        Server
	Database      DatabaseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Crypto        CryptoConfig
	Log           LogConfig
	ChangeRequest ChangeRequestConfig
}

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LoadEnv loads whichever of envFiles exist. Already-set variables win.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files then parses and validates the environment.
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.ChangeRequest.LedgerRebuildPolicy {
	case "replace", "preserve":
	default:
		errs = append(errs, fmt.Errorf("LEDGER_REBUILD_POLICY must be replace or preserve, got %q", c.ChangeRequest.LedgerRebuildPolicy))
	}
	if c.ChangeRequest.ListCacheTTL <= 0 {
		errs = append(errs, errors.New("LIST_CACHE_TTL must be positive"))
	}
	if c.Database.TxTimeout <= 0 {
		errs = append(errs, errors.New("TX_TIMEOUT must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}
