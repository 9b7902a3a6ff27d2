package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port string `validate:"required,numeric"`

	FeedBaseURL string `validate:"required,url"`
	WindBaseURL string `validate:"required,url"`

	// RedisURL selects the Redis cache store; empty means in-memory.
	RedisURL string `validate:"omitempty,url"`
	CacheKey string `validate:"required"`

	CacheTTL        time.Duration `validate:"gt=0"`
	RefreshInterval time.Duration `validate:"gt=0"`
	StartupDelay    time.Duration `validate:"gte=0"`

	MaxBatchSize      int            `validate:"min=1,max=200"`
	ReferenceTimezone *time.Location `validate:"required"`
	WindLevelMeters   int            `validate:"gt=0"`

	HTTPTimeout       time.Duration `validate:"gt=0"`
	HourFetchTimeout  time.Duration `validate:"gt=0"`
	PartialEnrichment bool
	EnrichConcurrency int `validate:"min=1"`

	// Outbound wind API rate limit (requests per second) and burst.
	WindRateLimit float64 `validate:"gt=0"`
	WindRateBurst int     `validate:"min=1"`

	RefreshMaxRetries int           `validate:"min=0"`
	RefreshBackoff    time.Duration `validate:"gt=0"`

	// CircuitOpenTimeout is how long a tripped upstream breaker rejects calls.
	CircuitOpenTimeout time.Duration `validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.FeedBaseURL = getenvDefault("FEED_BASE_URL", "https://a.windbornesystems.com/treasure")
	cfg.WindBaseURL = getenvDefault("WIND_BASE_URL", "https://api.open-meteo.com/v1/forecast")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.CacheKey = getenvDefault("CACHE_KEY", "balloon:aggregate")

	var err error
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	// The scheduler refreshes once per TTL window unless told otherwise.
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.StartupDelay, err = getenvDuration("STARTUP_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.HourFetchTimeout, err = getenvDuration("HOUR_FETCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshBackoff, err = getenvDuration("REFRESH_BACKOFF", 2*time.Second); err != nil {
		return nil, err
	}

	if cfg.CircuitOpenTimeout, err = getenvDuration("CIRCUIT_OPEN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	cfg.MaxBatchSize = getenvInt("MAX_BATCH_SIZE", 200)
	cfg.WindLevelMeters = getenvInt("WIND_LEVEL_METERS", 180)
	cfg.EnrichConcurrency = getenvInt("ENRICH_CONCURRENCY", 4)
	cfg.WindRateBurst = getenvInt("WIND_RATE_BURST", 5)
	cfg.RefreshMaxRetries = getenvInt("REFRESH_MAX_RETRIES", 3)
	cfg.PartialEnrichment = getenvBool("PARTIAL_ENRICHMENT", false)

	cfg.WindRateLimit, err = strconv.ParseFloat(getenvDefault("WIND_RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WIND_RATE_LIMIT: %w", err)
	}

	tzName := getenvDefault("REFERENCE_TIMEZONE", "UTC")
	cfg.ReferenceTimezone, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid REFERENCE_TIMEZONE: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if window := cfg.RetryWindow(); window > 0 && cfg.CircuitOpenTimeout >= window {
		return nil, fmt.Errorf("invalid configuration: CIRCUIT_OPEN_TIMEOUT %s must be shorter than the refresh retry window %s",
			cfg.CircuitOpenTimeout, window)
	}

	return cfg, nil
}

// RetryWindow is the total time the scheduler waits between the first and last
// attempt of a refresh.
func (c *AppConfig) RetryWindow() time.Duration {
	var window time.Duration
	backoff := c.RefreshBackoff
	for i := 0; i < c.RefreshMaxRetries; i++ {
		window += backoff
		backoff *= 2
	}
	return window
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
