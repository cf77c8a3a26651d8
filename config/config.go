package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds ingest pipeline configuration.
type Config struct {
	VideoAPIBaseURL    string
	VideoAPIKey        string
	ChannelID          string
	CommerceAPIBaseURL string
	UserAgent          string

	MaxPagesPerRun int
	PageSize       int
	BatchSize      int
	FanOutSize     int
	FanOutDelay    time.Duration

	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	RequestTimeout  time.Duration

	RetentionDays   int
	AggregationDays int
	DedupeCacheSize int

	DatabaseURL string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults sized for a single
// scheduled invocation.
func DefaultConfig() *Config {
	return &Config{
		VideoAPIBaseURL:    "https://www.googleapis.com/youtube/v3",
		CommerceAPIBaseURL: "https://www.dlsite.com/maniax/api",
		UserAgent:          "catalog-ingest/1.0",
		MaxPagesPerRun:     3,
		PageSize:           50,
		BatchSize:          500,
		FanOutSize:         10,
		FanOutDelay:        time.Second,
		MaxRetries:         3,
		RetryBackoff:       5 * time.Second,
		RetryBackoffMax:    30 * time.Second,
		RequestTimeout:     10 * time.Second,
		RetentionDays:      7,
		AggregationDays:    3,
		DedupeCacheSize:    8192,
		DatabaseURL:        "",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.VideoAPIBaseURL == "" {
		return fmt.Errorf("video API base URL cannot be empty")
	}
	if err := checkURL(c.VideoAPIBaseURL); err != nil {
		return fmt.Errorf("invalid video API base URL: %w", err)
	}
	if c.CommerceAPIBaseURL == "" {
		return fmt.Errorf("commerce API base URL cannot be empty")
	}
	if err := checkURL(c.CommerceAPIBaseURL); err != nil {
		return fmt.Errorf("invalid commerce API base URL: %w", err)
	}

	if c.MaxPagesPerRun <= 0 {
		return fmt.Errorf("max pages per run must be positive")
	}
	if c.PageSize <= 0 || c.PageSize > 50 {
		return fmt.Errorf("page size must be between 1 and 50")
	}
	if c.BatchSize <= 0 || c.BatchSize > 500 {
		return fmt.Errorf("batch size must be between 1 and 500")
	}
	if c.FanOutSize <= 0 {
		return fmt.Errorf("fan-out size must be positive")
	}
	if c.FanOutDelay < 0 {
		return fmt.Errorf("fan-out delay cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive")
	}
	if c.AggregationDays <= 0 {
		return fmt.Errorf("aggregation days must be positive")
	}
	if c.DedupeCacheSize <= 0 {
		return fmt.Errorf("dedupe cache size must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// EnvString returns the value of the named environment variable, or
// fallback when unset or empty.
func EnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvInt parses the named environment variable as an integer, or
// returns fallback when unset or unparsable.
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// EnvDuration parses the named environment variable as a time.Duration,
// or returns fallback when unset or unparsable.
func EnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// EnvBool parses the named environment variable as a boolean, or
// returns fallback when unset or unparsable.
func EnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
