// Package config loads and validates monitor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. TIKTOK_MONITOR_SERVER_PORT.
const EnvPrefix = "TIKTOK_MONITOR"

// PathEnv names the environment variable that may point at the config file.
const PathEnv = EnvPrefix + "_CONFIG"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the API client and crawl budgets.
type CrawlerConfig struct {
	BaseURL     string   `mapstructure:"base_url"`
	UserAgent   string   `mapstructure:"user_agent"`
	Cookie      string   `mapstructure:"cookie"`
	Proxy       string   `mapstructure:"proxy"`
	SignedHosts []string `mapstructure:"signed_hosts"`
	PageSize    int      `mapstructure:"page_size"`
	MaxVideos   int      `mapstructure:"max_videos"`
	Concurrency int      `mapstructure:"concurrency"`
	// RequestIntervalSeconds is accepted for compatibility; nothing throttles on it.
	RequestIntervalSeconds int  `mapstructure:"request_interval_seconds"`
	InsecureSkipVerify     bool `mapstructure:"insecure_skip_verify"`
}

// HTTPConfig configures outbound HTTP behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// SchedulerConfig controls periodic monitor tasks.
type SchedulerConfig struct {
	Enabled                bool `mapstructure:"enabled"`
	PollIntervalSeconds    int  `mapstructure:"poll_interval_seconds"`
	DefaultIntervalSeconds int  `mapstructure:"default_interval_seconds"`
	QueueDepth             int  `mapstructure:"queue_depth"`
}

// Provider names shared by the archive and events sections.
const (
	ProviderNone   = "none"
	ProviderMemory = "memory"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderPubSub = "pubsub"
)

// ArchiveConfig configures raw payload archiving.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	Dir       string `mapstructure:"dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig configures crawl event publishing.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LoadDotEnv loads a .env file into the process environment when one
// exists. Variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ResolvePath returns flagPath, or the PathEnv variable when flagPath is empty.
func ResolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return os.Getenv(PathEnv)
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("crawler.base_url", crawler.DefaultBaseURL)
	v.SetDefault("crawler.user_agent", "")
	v.SetDefault("crawler.cookie", "")
	v.SetDefault("crawler.proxy", "")
	v.SetDefault("crawler.signed_hosts", []string{"www.tiktok.com"})
	v.SetDefault("crawler.page_size", crawler.DefaultPageSize)
	v.SetDefault("crawler.max_videos", 100)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.request_interval_seconds", 1)
	v.SetDefault("crawler.insecure_skip_verify", false)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/tiktok_monitor.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.poll_interval_seconds", 60)
	v.SetDefault("scheduler.default_interval_seconds", crawler.DefaultTaskInterval)
	v.SetDefault("scheduler.queue_depth", 64)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.dir", "data/raw")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("events.provider", ProviderNone)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.PageSize <= 0 {
		return fmt.Errorf("crawler.page_size must be > 0")
	}
	if c.Crawler.MaxVideos < 0 {
		return fmt.Errorf("crawler.max_videos must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.PollIntervalSeconds <= 0 {
			return fmt.Errorf("scheduler.poll_interval_seconds must be > 0")
		}
		if c.Scheduler.QueueDepth <= 0 {
			return fmt.Errorf("scheduler.queue_depth must be > 0")
		}
	}
	if err := c.Archive.validate(); err != nil {
		return err
	}
	if err := c.Events.validate(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (d DatabaseConfig) validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver %q is not supported", d.Driver)
	}
	return nil
}

func (a ArchiveConfig) validate() error {
	switch a.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderLocal:
		if a.Dir == "" {
			return fmt.Errorf("archive.dir is required for the local provider")
		}
	case ProviderGCS:
		if a.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", a.Provider)
	}
	return nil
}

func (e EventsConfig) validate() error {
	switch e.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderPubSub:
		if e.ProjectID == "" || e.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("events.provider %q is not supported", e.Provider)
	}
	return nil
}

// Budget returns the crawl budget for user video listings.
func (c Config) Budget() crawler.Budget {
	return crawler.Budget{MaxItems: c.Crawler.MaxVideos, PageSize: c.Crawler.PageSize}
}

// HTTPTimeout converts http.timeout_seconds to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// PollInterval converts scheduler.poll_interval_seconds to a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Scheduler.PollIntervalSeconds) * time.Second
}
