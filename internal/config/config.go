// Package config loads application configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Browserless BrowserlessConfig `yaml:"browserless" mapstructure:"browserless"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Notion      NotionConfig      `yaml:"notion" mapstructure:"notion"`
	Validation  ValidationConfig  `yaml:"validation" mapstructure:"validation"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Runner      RunnerConfig      `yaml:"runner" mapstructure:"runner"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// BrowserlessConfig holds headless render API settings.
type BrowserlessConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	JudgeModel string  `yaml:"judge_model" mapstructure:"judge_model"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec
}

// NotionConfig holds the manual-review queue settings. Optional.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// ValidationConfig configures the orchestrator's stage deadlines and behavior.
type ValidationConfig struct {
	ExtractTimeoutSecs int  `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	VerdictTimeoutSecs int  `yaml:"verdict_timeout_secs" mapstructure:"verdict_timeout_secs"`
	CaptureScreenshot  bool `yaml:"capture_screenshot" mapstructure:"capture_screenshot"`
}

// DiscoveryConfig configures the web-search fallback.
type DiscoveryConfig struct {
	TimeoutSecs        int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DirectoryBlocklist []string `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
	MaxResults         int      `yaml:"max_results" mapstructure:"max_results"`
}

// RunnerConfig configures the batch task runner.
type RunnerConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxAttempts   int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultDirectoryBlocklist lists directory/aggregator hosts that discovery
// must never return as a candidate. The semantic judge handles directories
// that arrive as pre-existing candidate URLs.
var defaultDirectoryBlocklist = []string{
	"yelp.com", "yellowpages.com", "bbb.org", "facebook.com", "instagram.com",
	"linkedin.com", "twitter.com", "x.com", "angi.com", "thumbtack.com",
	"houzz.com", "homeadvisor.com", "nextdoor.com", "foursquare.com",
	"tripadvisor.com", "mapquest.com", "manta.com", "chamberofcommerce.com",
	"superpages.com", "citysearch.com", "merchantcircle.com", "porch.com",
	"google.com", "maps.google.com", "wikipedia.org",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SITECHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "sitecheck.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("browserless.base_url", "https://chrome.browserless.io")
	v.SetDefault("browserless.max_concurrent", 4)
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rate_limit", 2)
	v.SetDefault("anthropic.judge_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.rate_limit", 5)
	v.SetDefault("validation.extract_timeout_secs", 30)
	v.SetDefault("validation.verdict_timeout_secs", 45)
	v.SetDefault("validation.capture_screenshot", false)
	v.SetDefault("discovery.timeout_secs", 20)
	v.SetDefault("discovery.max_results", 10)
	v.SetDefault("discovery.directory_blocklist", defaultDirectoryBlocklist)
	v.SetDefault("runner.max_concurrent", 5)
	v.SetDefault("runner.max_attempts", 3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that credentials required for a full pipeline run are
// present. Missing credentials are a startup failure, never a per-run one.
func (c *Config) Validate() error {
	var missing []string
	if c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key")
	}
	if c.Browserless.Key == "" && c.Browserless.BaseURL == "https://chrome.browserless.io" {
		missing = append(missing, "browserless.key")
	}
	if c.Jina.Key == "" {
		missing = append(missing, "jina.key")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if len(missing) > 0 {
		return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
