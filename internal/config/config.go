package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort string

	// StoreProvider selects the backend set: "postgres" (Postgres + Redis,
	// NATS optional) or "memory" (in-process, single node).
	StoreProvider string

	StartingBalance int64
	CooldownMillis  int
	RefundOnFailure bool

	ProviderName    string
	ProviderBaseURL string
	ProviderAPIKey  string
}

// New loads and validates configuration from environment variables.
// NATS is optional: with no PIXELMINT_NATS_HOST the bus is a no-op and the
// journal worker simply won't start.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:          os.Getenv("PIXELMINT_POSTGRES_USER"),
		DBPass:          os.Getenv("PIXELMINT_POSTGRES_PASSWORD"),
		DBHost:          os.Getenv("PIXELMINT_POSTGRES_HOST"),
		DBPort:          os.Getenv("PIXELMINT_POSTGRES_PORT"),
		DBName:          os.Getenv("PIXELMINT_POSTGRES_DB"),
		SSLMode:         os.Getenv("PIXELMINT_POSTGRES_SSLMODE"),
		RedisHost:       os.Getenv("PIXELMINT_REDIS_HOST"),
		RedisPort:       os.Getenv("PIXELMINT_REDIS_PORT"),
		NatsHost:        os.Getenv("PIXELMINT_NATS_HOST"),
		NatsPort:        os.Getenv("PIXELMINT_NATS_PORT"),
		ApiPort:         getEnv("PIXELMINT_API_PORT", "8080"),
		StoreProvider:   getEnv("PIXELMINT_STORE_PROVIDER", "postgres"),
		StartingBalance: int64(getEnvInt("PIXELMINT_STARTING_BALANCE", 100)),
		CooldownMillis:  getEnvInt("PIXELMINT_COOLDOWN_MS", 3000),
		RefundOnFailure: getEnv("PIXELMINT_REFUND_ON_FAILURE", "true") == "true",
		ProviderName:    getEnv("PIXELMINT_PROVIDER_NAME", "engine"),
		ProviderBaseURL: os.Getenv("PIXELMINT_PROVIDER_URL"),
		ProviderAPIKey:  os.Getenv("PIXELMINT_PROVIDER_API_KEY"),
	}

	if cfg.StoreProvider != "postgres" && cfg.StoreProvider != "memory" {
		return nil, fmt.Errorf("invalid store provider %q, must be 'postgres' or 'memory'", cfg.StoreProvider)
	}

	if cfg.StoreProvider == "postgres" {
		if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
			return nil, fmt.Errorf("missing required env for database: PIXELMINT_POSTGRES_USER/HOST/DB/SSLMODE")
		}
		if cfg.RedisHost == "" || cfg.RedisPort == "" {
			return nil, fmt.Errorf("missing required env for redis: PIXELMINT_REDIS_HOST/PORT")
		}
	}

	if cfg.StartingBalance < 0 {
		return nil, fmt.Errorf("PIXELMINT_STARTING_BALANCE must not be negative")
	}
	if cfg.CooldownMillis <= 0 {
		return nil, fmt.Errorf("PIXELMINT_COOLDOWN_MS must be positive")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// NatsAddr returns the NATS url, or an error when no bus is configured.
func (c *Config) NatsAddr() (string, error) {
	if c.NatsHost == "" || c.NatsPort == "" {
		return "", fmt.Errorf("NATS bus is disabled (PIXELMINT_NATS_HOST/PORT not set)")
	}
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort), nil
}

func (c *Config) ApiAddr() string {
	return ":" + c.ApiPort
}

// Cooldown returns the per-(user, kind) minimum interval.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMillis) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}
