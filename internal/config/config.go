// Package config handles configuration loading for the dependency engine.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Inference  InferenceConfig  `mapstructure:"inference"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr"`
	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is the sustained requests per second allowed per token.
	RateLimit float64 `mapstructure:"rate_limit"`
	// RateBurst is the burst size allowed per token.
	RateBurst int `mapstructure:"rate_burst"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Tokens lists the accepted bearer tokens.
	Tokens []string `mapstructure:"tokens"`
}

// AnthropicConfig holds external reasoning API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the model identifier used for dependency judgments.
	Model string `mapstructure:"model"`
	// MaxTokens caps the response size per judgment call.
	MaxTokens int `mapstructure:"max_tokens"`
	// UseAWSBedrock routes calls through AWS Bedrock instead of the
	// Anthropic API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// InferenceConfig holds hybrid dependency inference settings.
type InferenceConfig struct {
	// Enabled toggles the external reasoning pass. Pattern matching
	// always runs.
	Enabled bool `mapstructure:"enabled"`
	// BatchSize is the maximum task pairs per reasoning request.
	BatchSize int `mapstructure:"batch_size"`
	// Concurrency bounds in-flight reasoning requests.
	Concurrency int `mapstructure:"concurrency"`
	// BatchTimeout bounds a single reasoning request.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// AcceptThreshold is the minimum combined confidence for an
	// inferred edge to be recorded.
	AcceptThreshold float64 `mapstructure:"accept_threshold"`
	// PatternThreshold is the confidence at which a pattern match is
	// considered decisive.
	PatternThreshold float64 `mapstructure:"pattern_threshold"`
	// AgreementBonus is added when pattern and reasoning agree.
	AgreementBonus float64 `mapstructure:"agreement_bonus"`
	// MinSharedKeywords is the shared-keyword count that marks a task
	// pair ambiguous.
	MinSharedKeywords int `mapstructure:"min_shared_keywords"`
	// PatternsFile optionally overrides the built-in pattern library.
	PatternsFile string `mapstructure:"patterns_file"`
}

// ClassifierConfig holds task type classification settings.
type ClassifierConfig struct {
	// RulesFile optionally overrides the built-in classification rules.
	RulesFile string `mapstructure:"rules_file"`
	// WatchRules reloads the rules file when it changes on disk.
	WatchRules bool `mapstructure:"watch_rules"`
	// ReviewThreshold flags classifications below this confidence for
	// human review.
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// CacheConfig holds inference cache settings.
type CacheConfig struct {
	// Backend selects the cache store: "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	// Path is the sqlite database path for the sqlite backend.
	Path string `mapstructure:"path"`
	// TTL is how long cached judgments stay valid.
	TTL time.Duration `mapstructure:"ttl"`
}

// SessionsConfig holds validation session persistence settings.
type SessionsConfig struct {
	// Path is the sqlite database path for stored validation sessions.
	// Empty resolves to sessions.db in the user data directory.
	Path string `mapstructure:"path"`
	// MaxAge prunes stored sessions older than this at startup. Zero
	// disables pruning.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// ResolvePath returns the configured path, or the default location in the
// user data directory when none is set.
func (s SessionsConfig) ResolvePath() string {
	if s.Path != "" {
		return s.Path
	}
	return filepath.Join(getUserDataDir(), "sessions.db")
}

// WebhookConfig holds dependency violation webhook settings.
type WebhookConfig struct {
	// URL receives dependency_violation events. Empty disables delivery.
	URL string `mapstructure:"url"`
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
	// File is the log file path. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, SKEIN_*)
// 2. Project config (.skein.yaml in current directory or parent)
// 3. User config (~/.config/skein/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("")

	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("server.addr", "SKEIN_ADDR")
	v.BindEnv("auth.tokens", "SKEIN_AUTH_TOKEN")
	v.BindEnv("webhook.url", "SKEIN_WEBHOOK_URL")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	v.SetDefault("auth.tokens", []string{})

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("inference.enabled", true)
	v.SetDefault("inference.batch_size", 20)
	v.SetDefault("inference.concurrency", 4)
	v.SetDefault("inference.batch_timeout", "60s")
	v.SetDefault("inference.accept_threshold", 0.6)
	v.SetDefault("inference.pattern_threshold", 0.8)
	v.SetDefault("inference.agreement_bonus", 0.15)
	v.SetDefault("inference.min_shared_keywords", 2)
	v.SetDefault("inference.patterns_file", "")

	v.SetDefault("classifier.rules_file", "")
	v.SetDefault("classifier.watch_rules", false)
	v.SetDefault("classifier.review_threshold", 0.5)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("sessions.path", "")
	v.SetDefault("sessions.max_age", "168h")

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")
}

// getUserConfigDir returns the XDG config directory for the engine.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "skein")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "skein")
	}
	return filepath.Join(home, ".config", "skein")
}

// getUserDataDir returns the XDG data directory for the engine.
func getUserDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "skein")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "skein")
	}
	return filepath.Join(home, ".local", "share", "skein")
}

// findProjectConfig searches for .skein.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".skein.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       10.0,
			RateBurst:       20,
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		Inference: InferenceConfig{
			Enabled:           true,
			BatchSize:         20,
			Concurrency:       4,
			BatchTimeout:      60 * time.Second,
			AcceptThreshold:   0.6,
			PatternThreshold:  0.8,
			AgreementBonus:    0.15,
			MinSharedKeywords: 2,
		},
		Classifier: ClassifierConfig{
			ReviewThreshold: 0.5,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
		},
		Sessions: SessionsConfig{
			MaxAge: 168 * time.Hour,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
		},
	}
}
