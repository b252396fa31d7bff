package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Environment string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	PersistEnabled   bool

	// Cache TTLs by result provenance. Synthetic results expire sooner so a
	// live fetch is retried quickly.
	TTLLive      time.Duration
	TTLSynthetic time.Duration
	// Sweep interval for the in-process secondary cache tier.
	MemorySweep time.Duration

	AdapterTimeout time.Duration
	GlobalBudget   time.Duration
	MaxConcurrency int
	MaxRetries     int
	RetryBaseDelay time.Duration

	BreakerFailures uint32
	BreakerCooldown time.Duration

	// Fractional tolerances for the listing similarity rule.
	DedupPriceTolerance float64
	DedupSizeTolerance  float64

	FallbackMinCount int
	FallbackMaxCount int

	EnabledSources []string
	UserAgent      string
	CSVExportPath  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "imovel"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "imovel123"),
		PostgresDB:       getEnv("POSTGRES_DB", "imovel_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		PersistEnabled:   getEnvBool("PERSIST_ENABLED", true),

		TTLLive:      getEnvDuration("CACHE_TTL_LIVE", 5*time.Minute),
		TTLSynthetic: getEnvDuration("CACHE_TTL_SYNTHETIC", time.Minute),
		MemorySweep:  getEnvDuration("CACHE_MEMORY_SWEEP", time.Minute),

		AdapterTimeout: getEnvDuration("ADAPTER_TIMEOUT", 8*time.Second),
		GlobalBudget:   getEnvDuration("GLOBAL_FETCH_BUDGET", 15*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),

		BreakerFailures: uint32(getEnvInt("BREAKER_FAILURES", 5)),
		BreakerCooldown: getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),

		DedupPriceTolerance: getEnvFloat("DEDUP_PRICE_TOLERANCE", 0.05),
		DedupSizeTolerance:  getEnvFloat("DEDUP_SIZE_TOLERANCE", 0.10),

		FallbackMinCount: getEnvInt("FALLBACK_MIN_COUNT", 8),
		FallbackMaxCount: getEnvInt("FALLBACK_MAX_COUNT", 15),

		EnabledSources: getEnvList("ENABLED_SOURCES", "zapimoveis,vivareal"),
		UserAgent: getEnv("HTTP_USER_AGENT",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
				"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		CSVExportPath: getEnv("CSV_EXPORT_PATH", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
