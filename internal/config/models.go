package config

import "time"

// ClassifierConfig represents the labeling model settings
type ClassifierConfig struct {
	MaxSamples          int
	PredictionCacheSize int
	RebuildDelay        time.Duration
	SenderBoost         bool
}

// PersistConfig represents the background state writer settings
type PersistConfig struct {
	Delay      time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// StoreConfig represents the key-value store settings
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// IngestConfig represents the ingestion queue settings
type IngestConfig struct {
	Source          string
	BatchSize       int
	MaxItems        int
	Interval        time.Duration
	AutoLearn       bool
	ExcludedDomains []string
}

// GmailConfig represents the Gmail message source settings
type GmailConfig struct {
	CredentialsFile    string
	TokenFile          string
	User               string
	Query              string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerOpenTimeout time.Duration
}

// ServerConfig represents the SMTP relay settings
type ServerConfig struct {
	FilterType       string
	ListenAddress    string
	ForwardAddress   string
	ForwardPort      int
	ForwardEnabled   bool
	LabelHeader      string
	ConfidenceHeader string
	ActionHeader     string
}

// HTTPConfig represents the HTTP API settings
type HTTPConfig struct {
	Enabled        bool
	ListenAddress  string
	RequestTimeout time.Duration
}

// LLMConfig represents the configuration for the label suggestion provider
type LLMConfig struct {
	Enabled       bool
	Provider      string
	MinConfidence float64
	Timeout       time.Duration
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GetClassifier returns the classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		MaxSamples:          c.GetInt("classifier.max_samples"),
		PredictionCacheSize: c.GetInt("classifier.prediction_cache_size"),
		RebuildDelay:        c.duration("classifier.rebuild_delay", 2*time.Second),
		SenderBoost:         c.GetBool("classifier.sender_boost"),
	}
}

// GetPersist returns the persistence configuration
func (c *Config) GetPersist() PersistConfig {
	return PersistConfig{
		Delay:      c.duration("persist.delay", time.Second),
		MaxRetries: c.GetInt("persist.max_retries"),
		RetryDelay: c.duration("persist.retry_delay", 500*time.Millisecond),
	}
}

// GetStore returns the key-value store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetIngest returns the ingestion configuration
func (c *Config) GetIngest() IngestConfig {
	return IngestConfig{
		Source:          c.GetString("ingest.source"),
		BatchSize:       c.GetInt("ingest.batch_size"),
		MaxItems:        c.GetInt("ingest.max_items"),
		Interval:        c.duration("ingest.interval", 0),
		AutoLearn:       c.GetBool("ingest.auto_learn"),
		ExcludedDomains: c.GetStringSlice("ingest.excluded_domains"),
	}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile:    c.GetString("gmail.credentials_file"),
		TokenFile:          c.GetString("gmail.token_file"),
		User:               c.GetString("gmail.user"),
		Query:              c.GetString("gmail.query"),
		Timeout:            c.duration("gmail.timeout", 30*time.Second),
		BreakerMaxFailures: c.GetInt("gmail.breaker.max_failures"),
		BreakerOpenTimeout: c.duration("gmail.breaker.open_timeout", time.Minute),
	}
}

// GetThresholds returns the configured threshold defaults keyed by name
func (c *Config) GetThresholds() map[string]float64 {
	return map[string]float64{
		"min_show":    c.GetFloat64("thresholds.min_show"),
		"min_apply":   c.GetFloat64("thresholds.min_apply"),
		"min_archive": c.GetFloat64("thresholds.min_archive"),
	}
}

// GetServer returns the SMTP relay configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:       c.GetString("server.filter_type"),
		ListenAddress:    c.GetString("server.listen_address"),
		ForwardAddress:   c.GetString("server.forward_address"),
		ForwardPort:      c.GetInt("server.forward_port"),
		ForwardEnabled:   c.GetBool("server.forward_enabled"),
		LabelHeader:      c.GetString("server.headers.label"),
		ConfidenceHeader: c.GetString("server.headers.confidence"),
		ActionHeader:     c.GetString("server.headers.action"),
	}
}

// GetHTTP returns the HTTP API configuration
func (c *Config) GetHTTP() HTTPConfig {
	return HTTPConfig{
		Enabled:        c.GetBool("http.enabled"),
		ListenAddress:  c.GetString("http.listen_address"),
		RequestTimeout: c.duration("http.request_timeout", 30*time.Second),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Enabled:       c.GetBool("llm.enabled"),
		Provider:      c.GetString("llm.provider"),
		MinConfidence: c.GetFloat64("llm.min_confidence"),
		Timeout:       c.duration("llm.timeout", 20*time.Second),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
	}
}

// LoggingConfig represents the logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}
