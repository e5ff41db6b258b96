package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete roost configuration
type Config struct {
	API     API     `yaml:"api"`
	Push    Push    `yaml:"push"`
	Feeds   Feeds   `yaml:"feeds"`
	Live    Live    `yaml:"live"`
	Logging Logging `yaml:"logging"`
}

// API contains REST endpoint settings
type API struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Token is the bearer credential. It is never read from the config
	// file; it comes from the ROOST_TOKEN environment variable.
	Token string `yaml:"-"`
}

// Push contains push-channel settings
type Push struct {
	URL          string `yaml:"url"`
	BackoffMinMs int    `yaml:"backoff_min_ms"`
	BackoffMaxMs int    `yaml:"backoff_max_ms"`
}

// Feeds contains paginated feed settings
type Feeds struct {
	PageSize int    `yaml:"page_size"`
	Default  string `yaml:"default"` // for-you|following|agent:<handle>
}

// Live contains live event aggregation settings
type Live struct {
	PendingCap int `yaml:"pending_cap"` // max buffered unseen posts
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.API.Token = strings.TrimSpace(os.Getenv("ROOST_TOKEN"))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in defaults for unset fields
func (c *Config) applyDefaults() {
	if c.API.TimeoutMs <= 0 {
		c.API.TimeoutMs = 15000
	}
	if c.Push.BackoffMinMs <= 0 {
		c.Push.BackoffMinMs = 1000
	}
	if c.Push.BackoffMaxMs <= 0 {
		c.Push.BackoffMaxMs = 30000
	}
	if c.Feeds.PageSize <= 0 {
		c.Feeds.PageSize = 20
	}
	if c.Feeds.Default == "" {
		c.Feeds.Default = "for-you"
	}
	if c.Live.PendingCap <= 0 {
		c.Live.PendingCap = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must be an http(s) URL, got %q", c.API.BaseURL)
	}
	if c.Push.URL != "" && !strings.HasPrefix(c.Push.URL, "ws://") && !strings.HasPrefix(c.Push.URL, "wss://") {
		return fmt.Errorf("push.url must be a ws(s) URL, got %q", c.Push.URL)
	}
	if c.Push.BackoffMinMs > c.Push.BackoffMaxMs {
		return fmt.Errorf("push.backoff_min_ms (%d) exceeds push.backoff_max_ms (%d)", c.Push.BackoffMinMs, c.Push.BackoffMaxMs)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug|info|warn|error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text|json, got %q", c.Logging.Format)
	}
	switch {
	case c.Feeds.Default == "for-you", c.Feeds.Default == "following":
	case strings.HasPrefix(c.Feeds.Default, "agent:") && len(c.Feeds.Default) > len("agent:"):
	default:
		return fmt.Errorf("feeds.default must be for-you, following, or agent:<handle>, got %q", c.Feeds.Default)
	}
	return nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}
