package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Broker        BrokerConfig
	Observability ObservabilityConfig
	App           AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string // CORS; empty disables the CORS middleware
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MaxConns       int32
	MigrateOnStart bool
}

// CacheConfig holds the Redis link cache configuration
type CacheConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	TTL      time.Duration
}

// BrokerConfig holds the RabbitMQ event publisher configuration.
// An empty URL disables publishing.
type BrokerConfig struct {
	URL      string
	Exchange string
}

// ObservabilityConfig holds logging and tracing settings
type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	BaseURL           string // Base URL for generating short links
	AliasLength       int
	AliasRetries      int
	RecentClicksLimit int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	intVal := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durVal := func(key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolVal := func(key string, def bool) bool {
		v, err := getEnvBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  durVal("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: durVal("SERVER_WRITE_TIMEOUT", 10*time.Second),
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS",
				[]string{"http://localhost", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "shortlink"),
			Password:       getEnv("DB_PASSWORD", "shortlink_secret"),
			DBName:         getEnv("DB_NAME", "shortlink"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       int32(intVal("DB_MAX_CONNS", 10)),
			MigrateOnStart: boolVal("MIGRATE_ON_START", true),
		},
		Cache: CacheConfig{
			Host:     getEnv("RDB_HOST", "localhost"),
			Port:     getEnv("RDB_PORT", "6379"),
			User:     getEnv("RDB_USER", ""),
			Password: getEnv("RDB_PASSWORD", ""),
			TTL:      durVal("CACHE_TTL", 10*time.Minute),
		},
		Broker: BrokerConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "shortlink.events"),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnv("SERVICE_NAME", "shortlink"),
			Environment:  getEnv("APP_ENV", "development"),
			OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
		},
		App: AppConfig{
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AliasLength:       intVal("ALIAS_LENGTH", 6),
			AliasRetries:      intVal("ALIAS_MAX_RETRIES", 5),
			RecentClicksLimit: intVal("RECENT_CLICKS_LIMIT", 5),
		},
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.App.AliasLength < 4 || c.App.AliasLength > 20 {
		return fmt.Errorf("ALIAS_LENGTH must be between 4 and 20, got %d", c.App.AliasLength)
	}
	if c.App.AliasRetries < 1 {
		return fmt.Errorf("ALIAS_MAX_RETRIES must be at least 1, got %d", c.App.AliasRetries)
	}
	if c.App.RecentClicksLimit < 1 {
		return fmt.Errorf("RECENT_CLICKS_LIMIT must be at least 1, got %d", c.App.RecentClicksLimit)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.Database.MaxConns)
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// ConnectionString returns the Redis connection URL
func (c *CacheConfig) ConnectionString() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
