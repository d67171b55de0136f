// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig            `mapstructure:"server"`
	Fetcher   FetcherConfig           `mapstructure:"fetcher"`
	Collector CollectorConfig         `mapstructure:"collector"`
	Artifacts ArtifactsConfig         `mapstructure:"artifacts"`
	DB        DBConfig                `mapstructure:"db"`
	Search    SearchConfig            `mapstructure:"search"`
	PubSub    PubSubConfig            `mapstructure:"pubsub"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Vendors   map[string]VendorConfig `mapstructure:"vendors"`
}

// ServerConfig controls the health/metrics HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// FetcherConfig governs the page download stage.
type FetcherConfig struct {
	Concurrency      int    `mapstructure:"concurrency"`
	UserAgent        string `mapstructure:"user_agent"`
	NavTimeoutSec    int    `mapstructure:"nav_timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	Force            bool   `mapstructure:"force"`
}

// CollectorConfig governs catalog pagination.
type CollectorConfig struct {
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
	MaxRetries     int  `mapstructure:"max_retries"`
	MaxPages       int  `mapstructure:"max_pages"`
	Force          bool `mapstructure:"force"`
}

// ArtifactsConfig sets where the URL sets, page cache, and extracted records
// live. Backend is "fs" or "gcs".
type ArtifactsConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifetime string `mapstructure:"max_conn_lifetime"`
}

// SearchConfig holds the Elasticsearch connection and index names.
type SearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SpecIndex  string   `mapstructure:"spec_index"`
	GroupIndex string   `mapstructure:"group_index"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. Leaving
// the project empty disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// VendorConfig describes one vendor's catalog entry points. The parsing
// strategy itself is selected in code by vendor name.
type VendorConfig struct {
	StartURLs []string `mapstructure:"start_urls"`
	Enabled   bool     `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FRAMESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetcher.concurrency", 2)
	v.SetDefault("fetcher.user_agent", "framesearch-ingest/0.1")
	v.SetDefault("fetcher.nav_timeout_seconds", 30)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.backoff_initial_ms", 250)
	v.SetDefault("fetcher.backoff_max_ms", 10000)
	v.SetDefault("fetcher.force", false)
	v.SetDefault("collector.timeout_seconds", 15)
	v.SetDefault("collector.max_retries", 3)
	v.SetDefault("collector.max_pages", 200)
	v.SetDefault("collector.force", false)
	v.SetDefault("artifacts.base_dir", "artifacts")
	v.SetDefault("artifacts.backend", "fs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.spec_index", "frameset_geometry")
	v.SetDefault("search.group_index", "bike_products")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetcher.Concurrency <= 0 {
		return fmt.Errorf("fetcher.concurrency must be > 0")
	}
	if c.Fetcher.NavTimeoutSec <= 0 {
		return fmt.Errorf("fetcher.nav_timeout_seconds must be > 0")
	}
	if c.Fetcher.MaxRetries <= 0 {
		return fmt.Errorf("fetcher.max_retries must be > 0")
	}
	if c.Collector.TimeoutSeconds <= 0 {
		return fmt.Errorf("collector.timeout_seconds must be > 0")
	}
	if c.Artifacts.BaseDir == "" {
		return fmt.Errorf("artifacts.base_dir is required")
	}
	switch c.Artifacts.Backend {
	case "fs", "gcs":
	default:
		return fmt.Errorf("artifacts.backend must be fs or gcs, got %q", c.Artifacts.Backend)
	}
	if c.Artifacts.Backend == "gcs" && c.Artifacts.GCSBucket == "" {
		return fmt.Errorf("artifacts.gcs_bucket is required with the gcs backend")
	}
	if c.Search.SpecIndex == "" || c.Search.GroupIndex == "" {
		return fmt.Errorf("search.spec_index and search.group_index are required")
	}
	if _, err := c.DBMaxConnLifetime(); err != nil {
		return err
	}
	return nil
}

// DBMaxConnLifetime parses the configured connection lifetime.
func (c Config) DBMaxConnLifetime() (time.Duration, error) {
	if c.DB.MaxConnLifetime == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.DB.MaxConnLifetime)
	if err != nil {
		return 0, fmt.Errorf("db.max_conn_lifetime: %w", err)
	}
	return d, nil
}

// NavTimeout converts the fetcher navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Fetcher.NavTimeoutSec) * time.Second
}

// CollectorTimeout converts the collector timeout into a duration.
func (c Config) CollectorTimeout() time.Duration {
	return time.Duration(c.Collector.TimeoutSeconds) * time.Second
}

// RetryBackoff converts fetcher backoff knobs into durations.
func (c Config) RetryBackoff() (base, max time.Duration) {
	return time.Duration(c.Fetcher.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.Fetcher.BackoffMaxMs) * time.Millisecond
}
