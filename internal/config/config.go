package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Supported database drivers
const (
	DriverPgx = "pgx"
	DriverPQ  = "pq"
)

// Supported secret backends for the database password
const (
	SecretsEnv   = "env"
	SecretsFile  = "file"
	SecretsAWS   = "aws"
	SecretsVault = "vault"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Secrets   SecretsConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP, gRPC and metrics listener configuration
type ServerConfig struct {
	Host            string
	HTTPPort        int
	GRPCPort        int
	MetricsPort     int
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Driver   string
	URL      string // takes precedence over the individual fields below
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns         int32
	MinConns         int32
	AcquireTimeout   time.Duration
	NoWait           bool
	StatementTimeout time.Duration
	ConnectAttempts  int
	MonitorInterval  time.Duration
}

// CORSConfig holds the allowed cross-origin settings
type CORSConfig struct {
	AllowedOrigin string
}

// RateLimitConfig holds per-client rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SecretsConfig selects where the database password comes from
type SecretsConfig struct {
	Backend        string
	PasswordSecret string // secret path/name holding the password
	Dir            string // base directory for the file backend
	AWSRegion      string
	AWSEndpoint    string
	VaultAddress   string
	VaultToken     string
	VaultMountPath string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			HTTPPort:        getEnvAsInt("HTTP_PORT", 3000),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", DriverPgx),
			URL:              getEnv("DATABASE_URL", ""),
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnvAsInt("DB_PORT", 5432),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", ""),
			Database:         getEnv("DB_NAME", "testdb"),
			SSLMode:          getEnv("DB_SSL_MODE", "disable"),
			MaxConns:         int32(getEnvAsInt("DB_MAX_CONNS", 20)),
			MinConns:         int32(getEnvAsInt("DB_MIN_CONNS", 0)),
			AcquireTimeout:   getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
			NoWait:           getEnvAsBool("DB_NO_WAIT", false),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 30*time.Second),
			ConnectAttempts:  getEnvAsInt("DB_CONNECT_ATTEMPTS", 5),
			MonitorInterval:  getEnvAsDuration("DB_MONITOR_INTERVAL", 30*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRETS_BACKEND", SecretsEnv),
			PasswordSecret: getEnv("DB_PASSWORD_SECRET", "txrunner/db-password"),
			Dir:            getEnv("SECRETS_DIR", "./secrets"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			AWSEndpoint:    getEnv("AWS_ENDPOINT", ""),
			VaultAddress:   getEnv("VAULT_ADDR", "http://127.0.0.1:8200"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnv("ENVIRONMENT", "development") != "production",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPgx, DriverPQ:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPgx, DriverPQ, c.Database.Driver)
	}

	if c.Database.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}
	if c.Database.ConnectAttempts < 1 {
		return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
	}

	switch c.Secrets.Backend {
	case SecretsEnv, SecretsFile, SecretsAWS:
	case SecretsVault:
		if c.Secrets.VaultToken == "" {
			return fmt.Errorf("VAULT_TOKEN is required for the vault secrets backend")
		}
	default:
		return fmt.Errorf("unsupported SECRETS_BACKEND %q", c.Secrets.Backend)
	}

	if c.CORS.AllowedOrigin == "" {
		return fmt.Errorf("CORS_ALLOWED_ORIGIN is required")
	}

	return nil
}

// ConnectionString returns the PostgreSQL URL. password overrides the
// configured one so secrets resolved at startup never live in Config.
func (c *DatabaseConfig) ConnectionString(password string) string {
	if c.URL != "" {
		if password == "" {
			return c.URL
		}
		u, err := url.Parse(c.URL)
		if err != nil || u.User == nil {
			return c.URL
		}
		u.User = url.UserPassword(u.User.Username(), password)
		return u.String()
	}

	if password == "" {
		password = c.Password
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("500ms", "5s"); "0" disables
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if valueStr == "0" {
		return 0
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
