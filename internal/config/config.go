// Package config loads and validates blogsearch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/cnblogs-search/internal/extract"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Site    SiteConfig    `mapstructure:"site"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Index   IndexConfig   `mapstructure:"index"`
	Storage StorageConfig `mapstructure:"storage"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	DB      DBConfig      `mapstructure:"db"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SiteConfig describes the blog being crawled.
type SiteConfig struct {
	BaseURL    string            `mapstructure:"base_url"`
	BloggerID  string            `mapstructure:"blogger_id"`
	Selectors  extract.Selectors `mapstructure:"selectors"`
	TimeLayout string            `mapstructure:"time_layout"`
	TimeZone   string            `mapstructure:"time_zone"`
}

// CrawlerConfig governs dispatcher and crawl pipeline behavior.
type CrawlerConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Concurrency     int      `mapstructure:"concurrency"`
	UserAgent       string   `mapstructure:"user_agent"`
	IgnoreRobots    bool     `mapstructure:"ignore_robots"`
	RatePerSecond   float64  `mapstructure:"rate_per_second"`
	Burst           int      `mapstructure:"burst"`
	MaxPages        int      `mapstructure:"max_pages"`
	MaxRetries      int      `mapstructure:"max_retries"`
	BackoffMs       int      `mapstructure:"backoff_initial_ms"`
	Seeds           []string `mapstructure:"seeds"`
	PublishedBuffer int      `mapstructure:"published_buffer"`
}

// HTTPConfig configures the fetch client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// StatsConfig controls the engagement stats lookup.
type StatsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	TimeoutSeconds int  `mapstructure:"timeout_seconds"`
}

// IndexConfig locates the search index.
type IndexConfig struct {
	Path      string `mapstructure:"path"`
	BatchSize int    `mapstructure:"batch_size"`
}

// StorageConfig selects the raw page archive.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for "document indexed" notifications. Without a
// project ID notifications stay in process; an empty topic disables them.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DBConfig controls access to the page ledger database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Storage backends.
const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLOGSEARCH")
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
	sel := extract.DefaultSelectors()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("site.base_url", "https://www.cnblogs.com")
	v.SetDefault("site.blogger_id", "")
	v.SetDefault("site.selectors.post_links", sel.PostLinks)
	v.SetDefault("site.selectors.next_page", sel.NextPage)
	v.SetDefault("site.selectors.title", sel.Title)
	v.SetDefault("site.selectors.publish_time", sel.PublishTime)
	v.SetDefault("site.selectors.content", sel.Content)
	v.SetDefault("site.selectors.tags", sel.Tags)
	v.SetDefault("site.time_layout", "2006-01-02 15:04")
	v.SetDefault("site.time_zone", "Asia/Shanghai")
	v.SetDefault("crawler.enabled", false)
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.user_agent", "blogsearch-bot/0.1")
	v.SetDefault("crawler.ignore_robots", false)
	v.SetDefault("crawler.rate_per_second", 2.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.backoff_initial_ms", 250)
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.published_buffer", 1000)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.timeout_seconds", 10)
	v.SetDefault("index.path", "data/index")
	v.SetDefault("index.batch_size", 1)
	v.SetDefault("storage.backend", StorageNone)
	v.SetDefault("storage.base_dir", "data/pages")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("pubsub.topic_name", "documents-indexed")
	v.SetDefault("db.table", "indexed_pages")
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch_size must be >= 1")
	}
	if c.Crawler.Enabled && c.Site.BloggerID == "" {
		return fmt.Errorf("site.blogger_id must be set when crawling is enabled")
	}
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	switch c.Storage.Backend {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of none|memory|local|gcs", c.Storage.Backend)
	}
	return nil
}

// FetchTimeout returns the per-request fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// StatsTimeout returns the per-call stats budget.
func (c Config) StatsTimeout() time.Duration {
	return time.Duration(c.Stats.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the API handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// RetryBackoff returns the base delay between fetch retries.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.Crawler.BackoffMs) * time.Millisecond
}
