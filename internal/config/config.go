// Package config loads and validates hunter's runtime configuration.
// Fail-fast: a missing required value or an inconsistent range is returned
// as an error and the process exits before any connection is opened.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, a .env file in the working directory, then HUNTER_* environment
// variables (DATABASE_URL and REDIS_URL are also honored unprefixed).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max-conns"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
	// Channel is the pub/sub channel status events are broadcast on.
	Channel        string        `mapstructure:"channel"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
}

// ScanConfig bounds how hard a single board scan may hit a site.
type ScanConfig struct {
	MaxPages        int           `mapstructure:"max-pages"`
	MinDelay        time.Duration `mapstructure:"min-delay"`
	MaxDelay        time.Duration `mapstructure:"max-delay"`
	InitialMinDelay time.Duration `mapstructure:"initial-min-delay"`
	InitialMaxDelay time.Duration `mapstructure:"initial-max-delay"`
	RobotsUserAgent string        `mapstructure:"robots-user-agent"`
	RobotsTimeout   time.Duration `mapstructure:"robots-timeout"`
}

type BrowserConfig struct {
	// Renderer is "playwright" or "static" (plain HTTP + goquery, no JS).
	Renderer      string        `mapstructure:"renderer"`
	Headless      bool          `mapstructure:"headless"`
	ScreenshotDir string        `mapstructure:"screenshot-dir"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	SoftLimit    time.Duration `mapstructure:"soft-limit"`
	HardLimit    time.Duration `mapstructure:"hard-limit"`
	DrainTimeout time.Duration `mapstructure:"drain-timeout"`
	StreamPrefix string        `mapstructure:"stream-prefix"`
	Group        string        `mapstructure:"group"`
	BlockTimeout time.Duration `mapstructure:"block-timeout"`
}

type SchedulerConfig struct {
	Spec string `mapstructure:"spec"`
}

// NotifyConfig enables the SES email notifier when Region, From and To are
// all set; otherwise notifications are only logged.
type NotifyConfig struct {
	SESRegion string `mapstructure:"ses-region"`
	From      string `mapstructure:"from"`
	To        string `mapstructure:"to"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// EmailEnabled reports whether the SES notifier should be wired.
func (n NotifyConfig) EmailEnabled() bool {
	return n.SESRegion != "" && n.From != "" && n.To != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.max-conns", 10)
	v.SetDefault("database.connect-timeout", 10*time.Second)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "hunter:ws_broadcast")
	v.SetDefault("redis.connect-timeout", 5*time.Second)

	v.SetDefault("scan.max-pages", 5)
	v.SetDefault("scan.min-delay", 2*time.Second)
	v.SetDefault("scan.max-delay", 8*time.Second)
	v.SetDefault("scan.initial-min-delay", time.Second)
	v.SetDefault("scan.initial-max-delay", 3*time.Second)
	v.SetDefault("scan.robots-user-agent", "HunterBot")
	v.SetDefault("scan.robots-timeout", 10*time.Second)

	v.SetDefault("browser.renderer", "playwright")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.screenshot-dir", "uploads/screenshots")
	v.SetDefault("browser.timeout", 30*time.Second)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.soft-limit", 600*time.Second)
	v.SetDefault("worker.hard-limit", 900*time.Second)
	v.SetDefault("worker.drain-timeout", 30*time.Second)
	v.SetDefault("worker.stream-prefix", "hunter")
	v.SetDefault("worker.group", "hunter-workers")
	v.SetDefault("worker.block-timeout", 5*time.Second)

	v.SetDefault("scheduler.spec", "@every 1m")

	v.SetDefault("notify.ses-region", "")
	v.SetDefault("notify.from", "")
	v.SetDefault("notify.to", "")

	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// Load reads configuration and returns a validated Config. path may be
// empty, in which case only defaults, .env and the environment are used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HUNTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("database.url", "HUNTER_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("redis.url", "HUNTER_REDIS_URL", "REDIS_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required values and range consistency.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Scan.MaxPages < 1 {
		return fmt.Errorf("scan.max-pages must be a positive integer, got %d", c.Scan.MaxPages)
	}
	if c.Scan.MinDelay > c.Scan.MaxDelay {
		return fmt.Errorf("scan.min-delay (%s) exceeds scan.max-delay (%s)", c.Scan.MinDelay, c.Scan.MaxDelay)
	}
	if c.Scan.InitialMinDelay > c.Scan.InitialMaxDelay {
		return fmt.Errorf("scan.initial-min-delay (%s) exceeds scan.initial-max-delay (%s)",
			c.Scan.InitialMinDelay, c.Scan.InitialMaxDelay)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be a positive integer, got %d", c.Worker.Concurrency)
	}
	if c.Worker.SoftLimit > c.Worker.HardLimit {
		return fmt.Errorf("worker.soft-limit (%s) exceeds worker.hard-limit (%s)", c.Worker.SoftLimit, c.Worker.HardLimit)
	}
	switch c.Browser.Renderer {
	case "playwright", "static":
	default:
		return fmt.Errorf("browser.renderer must be playwright or static, got %q", c.Browser.Renderer)
	}
	return nil
}
