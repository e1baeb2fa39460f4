package lplens

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config configures the lplens service.
type Config struct {
	// ScreenshotDir is the storage root of captured images.
	ScreenshotDir string `yaml:"screenshot_dir"`
	// Language of free-text analysis fields: "ja" or "en". Default: "ja".
	Language string `yaml:"language"`

	Metadata  MetadataConfig  `yaml:"metadata"`
	Browser   BrowserConfig   `yaml:"browser"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Repair    RepairConfig    `yaml:"repair"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// MetadataConfig configures the fallback metadata fetch.
type MetadataConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

// BrowserConfig configures screenshot capture.
type BrowserConfig struct {
	RemoteURL  string        `yaml:"remote_url"`
	Bin        string        `yaml:"bin"`
	Stealth    bool          `yaml:"stealth"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
	Settle     time.Duration `yaml:"settle"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ReasoningConfig configures the external reasoning service.
type ReasoningConfig struct {
	Protocol       string        `yaml:"protocol"` // anthropic | openai
	Endpoint       string        `yaml:"endpoint"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	ImageMaxTokens int           `yaml:"image_max_tokens"`
	TextMaxTokens  int           `yaml:"text_max_tokens"`
}

// RepairConfig configures the stale-analysis sweeper.
type RepairConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// SchedulerConfig configures automatic analysis of pending snapshots.
type SchedulerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency"`
}

func (c *Config) defaults() {
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "data/screenshots"
	}
	if c.Language == "" {
		c.Language = "ja"
	}
	if c.Metadata.Timeout <= 0 {
		c.Metadata.Timeout = 10 * time.Second
	}
	if c.Metadata.MaxBytes <= 0 {
		c.Metadata.MaxBytes = 2 << 20
	}
	if c.Metadata.UserAgent == "" {
		c.Metadata.UserAgent = "LP-Lens-Bot/1.0"
	}
	if c.Browser.Width <= 0 {
		c.Browser.Width = 1280
	}
	if c.Browser.Height <= 0 {
		c.Browser.Height = 900
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.Settle == 0 {
		c.Browser.Settle = 2 * time.Second
	}
	if c.Reasoning.Protocol == "" {
		c.Reasoning.Protocol = "anthropic"
	}
	if c.Reasoning.Model == "" {
		c.Reasoning.Model = "claude-opus-4-5"
	}
	if c.Reasoning.Timeout <= 0 {
		c.Reasoning.Timeout = 120 * time.Second
	}
	if c.Reasoning.ImageMaxTokens <= 0 {
		c.Reasoning.ImageMaxTokens = 4096
	}
	if c.Reasoning.TextMaxTokens <= 0 {
		c.Reasoning.TextMaxTokens = 2048
	}
	if c.Repair.Interval <= 0 {
		c.Repair.Interval = 5 * time.Minute
	}
	if c.Repair.StaleAfter <= 0 {
		c.Repair.StaleAfter = 10 * time.Minute
	}
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = 15 * time.Second
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 2
	}
}

// DefaultConfig returns the configuration used when no file is given.
// Stealth capture and the pending-snapshot scheduler are on.
func DefaultConfig() *Config {
	cfg := &Config{
		Browser:   BrowserConfig{Stealth: true},
		Scheduler: SchedulerConfig{Enabled: true},
	}
	cfg.defaults()
	return cfg
}

// LoadConfigFile reads a YAML config file on top of DefaultConfig, so keys
// absent from the file keep their defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}
