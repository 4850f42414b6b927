package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
site:
  base_url: https://blogs.example.com
  blogger_id: alice
  selectors:
    title: h1.title
  time_zone: UTC
crawler:
  enabled: true
  concurrency: 6
  user_agent: real-agent
  ignore_robots: true
  rate_per_second: 0.5
  max_pages: 50
  seeds: ["https://blogs.example.com/alice/default.html?page=3"]
http:
  timeout_seconds: 45
index:
  path: /var/lib/blogsearch
  batch_size: 20
storage:
  backend: local
  base_dir: /tmp/pages
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Crawler.Enabled || cfg.Crawler.Concurrency != 6 || !cfg.Crawler.IgnoreRobots {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	require.Equal(t, "alice", cfg.Site.BloggerID)
	require.Equal(t, "h1.title", cfg.Site.Selectors.Title)
	// Untouched selectors keep their defaults.
	require.Equal(t, "#nav_next a", cfg.Site.Selectors.NextPage)
	require.Equal(t, []string{"https://blogs.example.com/alice/default.html?page=3"}, cfg.Crawler.Seeds)
	require.Equal(t, 20, cfg.Index.BatchSize)
	require.Equal(t, StorageLocal, cfg.Storage.Backend)
	require.False(t, cfg.Logging.Development)
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://www.cnblogs.com", cfg.Site.BaseURL)
	require.Equal(t, "2006-01-02 15:04", cfg.Site.TimeLayout)
	require.Equal(t, "Asia/Shanghai", cfg.Site.TimeZone)
	require.Equal(t, "div.forFlow div.postTitle a", cfg.Site.Selectors.PostLinks)
	require.Equal(t, StorageNone, cfg.Storage.Backend)
	require.Equal(t, "indexed_pages", cfg.DB.Table)
	require.Equal(t, "documents-indexed", cfg.PubSub.TopicName)
	require.Equal(t, 1, cfg.Index.BatchSize)
	require.Equal(t, 10<<20, cfg.HTTP.MaxBodyBytes)
	require.True(t, cfg.Stats.Enabled)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBackoff())
	require.Equal(t, 10*time.Second, cfg.StatsTimeout())
	require.Equal(t, 30*time.Second, cfg.RequestTimeout())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Site:    SiteConfig{BaseURL: "https://www.cnblogs.com"},
		Crawler: CrawlerConfig{Concurrency: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Index:   IndexConfig{BatchSize: 1},
		Storage: StorageConfig{Backend: StorageNone},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "negative retries", mutate: func(c *Config) { c.Crawler.MaxRetries = -1 }, want: "crawler.max_retries"},
		{name: "zero batch", mutate: func(c *Config) { c.Index.BatchSize = 0 }, want: "index.batch_size"},
		{name: "crawl without blogger", mutate: func(c *Config) { c.Crawler.Enabled = true }, want: "site.blogger_id"},
		{name: "missing base url", mutate: func(c *Config) { c.Site.BaseURL = "" }, want: "site.base_url"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = StorageLocal }, want: "storage.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = StorageGCS }, want: "storage.gcs_bucket"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
