package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-labeler/")
	v.AddConfigPath("$HOME/.mail-labeler")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_LABELER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile loads configuration from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := NewEmptyViper()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_LABELER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classifier defaults
	v.SetDefault("classifier.max_samples", 2000)
	v.SetDefault("classifier.prediction_cache_size", 5000)
	v.SetDefault("classifier.rebuild_delay", "2s")
	v.SetDefault("classifier.sender_boost", true)

	// Persistence defaults
	v.SetDefault("persist.delay", "1s")
	v.SetDefault("persist.max_retries", 3)
	v.SetDefault("persist.retry_delay", "500ms")

	// Store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/mail_labeler.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/mail_labeler")

	// Ingestion defaults
	v.SetDefault("ingest.source", "gmail")
	v.SetDefault("ingest.batch_size", 50)
	v.SetDefault("ingest.max_items", 200)
	v.SetDefault("ingest.interval", "5m")
	v.SetDefault("ingest.auto_learn", true)
	v.SetDefault("ingest.excluded_domains", []string{})

	// Gmail defaults
	v.SetDefault("gmail.credentials_file", "/etc/mail-labeler/credentials.json")
	v.SetDefault("gmail.token_file", "/data/gmail_token.json")
	v.SetDefault("gmail.user", "me")
	v.SetDefault("gmail.query", "")
	v.SetDefault("gmail.timeout", "30s")
	v.SetDefault("gmail.breaker.max_failures", 5)
	v.SetDefault("gmail.breaker.open_timeout", "60s")

	// Thresholds defaults
	v.SetDefault("thresholds.min_show", 0.5)
	v.SetDefault("thresholds.min_apply", 0.5)
	v.SetDefault("thresholds.min_archive", 0.5)

	// Server defaults
	v.SetDefault("server.filter_type", "smtp")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.forward_address", "localhost")
	v.SetDefault("server.forward_port", 10026)
	v.SetDefault("server.forward_enabled", true)
	v.SetDefault("server.headers.label", "X-Mail-Label")
	v.SetDefault("server.headers.confidence", "X-Mail-Label-Confidence")
	v.SetDefault("server.headers.action", "X-Mail-Label-Action")

	// HTTP API defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen_address", "0.0.0.0:8080")
	v.SetDefault("http.request_timeout", "30s")

	// LLM provider defaults
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.min_confidence", 0.6)
	v.SetDefault("llm.timeout", "20s")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// Set overrides a value, as command-line flags do
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}

// duration reads key as a duration, falling back to def when it does not parse
func (c *Config) duration(key string, def time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil {
		return def
	}
	return d
}
