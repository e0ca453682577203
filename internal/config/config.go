// Package config provides runtime configuration values for the engine.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendLocal    = "local"
)

// Config holds the knobs for the HTTP boundary, backends and workers.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	AppEnv          string
	LogLevel        string

	StoreBackend string
	Database     Database

	CacheBackend string
	Cache        Cache

	LockBackend string
	LockTimeout time.Duration
	LockExpiry  time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	VerifyInterval  time.Duration
	ApplyMaxRetries int
	ApplyRetryBase  time.Duration

	CurrencyScales map[string]int32
}

type Database struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN renders a lib/pq connection URL.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

type Cache struct {
	Host string
	Port int
	DB   int
	TTL  time.Duration
}

func (c Cache) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// durenv accepts Go duration strings ("250ms", "5m").
func durenv(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func listenv(key string) []string {
	var out []string
	for _, part := range strings.Split(getenv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseCurrencyScales reads "BTC:8,JPY:0".
func ParseCurrencyScales(s string) (map[string]int32, error) {
	scales := make(map[string]int32)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, digits, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("currency scale %q: want CODE:DIGITS", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(digits), 10, 32)
		if err != nil || n < 0 || n > 18 {
			return nil, fmt.Errorf("currency scale %q: digits must be 0-18", part)
		}
		scales[strings.ToUpper(strings.TrimSpace(code))] = int32(n)
	}
	return scales, nil
}

// Load reads an optional .env file and then the environment, with defaults.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	scales, err := ParseCurrencyScales(getenv("CURRENCY_SCALES", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenv("SHUTDOWN_TIMEOUT", 15*time.Second),
		AppEnv:          getenv("APP_ENV", "production"),
		LogLevel:        getenv("LOG_LEVEL", ""),

		StoreBackend: getenv("STORE_BACKEND", BackendMemory),
		Database: Database{
			Host:     getenv("DATABASE_HOST", "localhost"),
			Port:     atoienv("DATABASE_PORT", 5432),
			Name:     getenv("DATABASE_NAME", "accounting"),
			User:     getenv("DATABASE_USER", "postgres"),
			Password: getenv("DATABASE_PASSWORD", ""),
			SSLMode:  getenv("DATABASE_SSLMODE", "disable"),
		},

		CacheBackend: getenv("CACHE_BACKEND", BackendMemory),
		Cache: Cache{
			Host: getenv("CACHE_HOST", "localhost"),
			Port: atoienv("CACHE_PORT", 6379),
			DB:   atoienv("CACHE_DB", 0),
			TTL:  durenv("CACHE_TTL", 10*time.Minute),
		},

		LockBackend: getenv("LOCK_BACKEND", BackendLocal),
		LockTimeout: durenv("LOCK_TIMEOUT", 2*time.Second),
		LockExpiry:  durenv("LOCK_EXPIRY", 10*time.Second),

		KafkaBrokers: listenv("KAFKA_BROKERS"),
		KafkaTopic:   getenv("KAFKA_TOPIC", "ledger.events.committed"),

		VerifyInterval:  durenv("VERIFY_INTERVAL", 5*time.Minute),
		ApplyMaxRetries: atoienv("APPLY_MAX_RETRIES", 3),
		ApplyRetryBase:  durenv("APPLY_RETRY_BASE", 50*time.Millisecond),

		CurrencyScales: scales,
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("STORE_BACKEND %q: want memory or postgres", c.StoreBackend)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND %q: want memory or redis", c.CacheBackend)
	}
	switch c.LockBackend {
	case BackendLocal, BackendRedis:
	default:
		return fmt.Errorf("LOCK_BACKEND %q: want local or redis", c.LockBackend)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if c.VerifyInterval <= 0 {
		return fmt.Errorf("VERIFY_INTERVAL must be positive")
	}
	if c.ApplyMaxRetries < 0 {
		return fmt.Errorf("APPLY_MAX_RETRIES must not be negative")
	}
	return nil
}
