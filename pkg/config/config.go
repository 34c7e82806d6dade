// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/metaltracker/parser-service/internal/parser"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig                 `mapstructure:"server"`
	Logging      LoggingConfig                `mapstructure:"logging"`
	Database     DatabaseConfig               `mapstructure:"database"`
	Stores       StoresConfig                 `mapstructure:"stores"`
	Storage      StorageConfig                `mapstructure:"storage"`
	Queue        QueueConfig                  `mapstructure:"queue"`
	Publisher    PublisherConfig              `mapstructure:"publisher"`
	Parser       ParserConfig                 `mapstructure:"parser"`
	Fetch        FetchConfig                  `mapstructure:"fetch"`
	Images       ImagesConfig                 `mapstructure:"images"`
	Distributors map[string]DistributorConfig `mapstructure:"distributors"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN           string `mapstructure:"dsn"`
	RunMigrations bool   `mapstructure:"run_migrations"`
}

// StoresConfig selects the persistence backend.
type StoresConfig struct {
	Provider string `mapstructure:"provider"`
}

// StorageConfig selects the blob backend for chunks and cover images.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// QueueConfig selects the publication message bus.
type QueueConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// PublisherConfig governs the outbox handoff job.
type PublisherConfig struct {
	MaxChunkSizeInBytes int    `mapstructure:"max_chunk_size_bytes"`
	Schedule            string `mapstructure:"schedule"`
}

// ParserConfig governs crawl politeness and eligibility.
type ParserConfig struct {
	MinDelaySeconds     int    `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds     int    `mapstructure:"max_delay_seconds"`
	RequireVerification bool   `mapstructure:"require_verification"`
	UserAgent           string `mapstructure:"user_agent"`
}

// FetchConfig selects how listing and detail pages are retrieved.
type FetchConfig struct {
	Provider         string `mapstructure:"provider"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	FlareSolverrURL  string `mapstructure:"flaresolverr_url"`
	HeadlessParallel int    `mapstructure:"headless_parallel"`
}

// ImagesConfig bounds cover image mirroring.
type ImagesConfig struct {
	MinSizeBytes   int `mapstructure:"min_size_bytes"`
	MaxSizeBytes   int `mapstructure:"max_size_bytes"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// DistributorConfig schedules one distributor's crawl.
type DistributorConfig struct {
	ListingURL string `mapstructure:"listing_url"`
	Schedule   string `mapstructure:"schedule"`
	Enabled    bool   `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PARSER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("database.run_migrations", true)
	v.SetDefault("stores.provider", "memory")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("queue.provider", "noop")
	v.SetDefault("publisher.max_chunk_size_bytes", 4*1024*1024)
	v.SetDefault("publisher.schedule", "@every 10m")
	v.SetDefault("parser.min_delay_seconds", 2)
	v.SetDefault("parser.max_delay_seconds", 6)
	v.SetDefault("parser.require_verification", false)
	v.SetDefault("parser.user_agent", "metaltracker-parser/1.0")
	v.SetDefault("fetch.provider", "colly")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.headless_parallel", 1)
	v.SetDefault("images.min_size_bytes", 1024)
	v.SetDefault("images.max_size_bytes", 10*1024*1024)
	v.SetDefault("images.timeout_seconds", 30)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Publisher.MaxChunkSizeInBytes <= 0 {
		return fmt.Errorf("publisher.max_chunk_size_bytes must be > 0")
	}
	if c.Parser.MinDelaySeconds < 0 || c.Parser.MaxDelaySeconds < c.Parser.MinDelaySeconds {
		return fmt.Errorf("parser delay bounds must satisfy 0 <= min <= max")
	}
	switch c.Stores.Provider {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set when stores.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown stores.provider %q", c.Stores.Provider)
	}
	switch c.Storage.Provider {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	switch c.Queue.Provider {
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.TopicID == "" {
			return fmt.Errorf("queue.project_id and queue.topic_id must be set when queue.provider is pubsub")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown queue.provider %q", c.Queue.Provider)
	}
	switch c.Fetch.Provider {
	case "flaresolverr":
		if c.Fetch.FlareSolverrURL == "" {
			return fmt.Errorf("fetch.flaresolverr_url must be set when fetch.provider is flaresolverr")
		}
	case "colly", "headless":
	default:
		return fmt.Errorf("unknown fetch.provider %q", c.Fetch.Provider)
	}
	for code, dist := range c.Distributors {
		if _, err := parser.ParseDistributorCode(code); err != nil {
			return err
		}
		if !dist.Enabled {
			continue
		}
		if dist.ListingURL == "" {
			return fmt.Errorf("distributors.%s.listing_url must be set when enabled", code)
		}
		if dist.Schedule == "" {
			return fmt.Errorf("distributors.%s.schedule must be set when enabled", code)
		}
	}
	return nil
}

// EnabledDistributors returns the configured distributors that are turned
// on, as validated codes.
func (c Config) EnabledDistributors() []parser.DistributorCode {
	var out []parser.DistributorCode
	for code, dist := range c.Distributors {
		if dist.Enabled {
			out = append(out, parser.DistributorCode(code))
		}
	}
	return out
}

// Delay converts the politeness bounds into durations.
func (c Config) Delay() (min, max time.Duration) {
	return time.Duration(c.Parser.MinDelaySeconds) * time.Second,
		time.Duration(c.Parser.MaxDelaySeconds) * time.Second
}
