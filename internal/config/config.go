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
	return NewFromFile("")
}

// NewFromFile creates a configuration instance reading an explicit file.
// An empty path searches the default locations.
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/mail-triage/")
		v.AddConfigPath("$HOME/.mail-triage")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
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

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Well-known vendor variables are honoured alongside the prefixed ones
	_ = v.BindEnv("anthropic.api_key", "MAIL_TRIAGE_ANTHROPIC_API_KEY", "CLAUDE_API_KEY")
	_ = v.BindEnv("anthropic.base_url", "MAIL_TRIAGE_ANTHROPIC_BASE_URL", "CLAUDE_API_URL")
	_ = v.BindEnv("anthropic.model", "MAIL_TRIAGE_ANTHROPIC_MODEL", "CLAUDE_MODEL")
	_ = v.BindEnv("grok.api_key", "MAIL_TRIAGE_GROK_API_KEY", "GROK_API_KEY")
	_ = v.BindEnv("openai.api_key", "MAIL_TRIAGE_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("gemini.api_key", "MAIL_TRIAGE_GEMINI_API_KEY", "GEMINI_API_KEY")
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classification
	v.SetDefault("classifier.provider", "anthropic")
	v.SetDefault("classifier.variant", "")
	v.SetDefault("classifier.strategy", "combined")
	v.SetDefault("classifier.thresholds.definite", 0.7)
	v.SetDefault("classifier.thresholds.possible", 0.4)
	v.SetDefault("classifier.auto_assign_threshold", 0.5)
	v.SetDefault("classifier.min_content_length", 10)

	// Anthropic Messages API
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("anthropic.timeout", "60s")

	// Grok (OpenAI-compatible)
	v.SetDefault("grok.api_key", "")
	v.SetDefault("grok.base_url", "https://api.x.ai/v1")
	v.SetDefault("grok.model", "grok-beta")
	v.SetDefault("grok.timeout", "30s")

	// OpenAI
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4")
	v.SetDefault("openai.timeout", "30s")

	// Gemini
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.top_p", 0.9)

	// Bedrock
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-5-sonnet-20240620-v1:0")

	// Ingestion
	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "2s")
	v.SetDefault("gmail.page_size", 100)
	v.SetDefault("gmail.batch_size", 25)
	v.SetDefault("gmail.request_delay", "35ms")
	v.SetDefault("gmail.batch_delay", "500ms")
	v.SetDefault("gmail.endpoint", "")
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.page_size", 100)
	v.SetDefault("imap.port", 993)

	// Scheduler
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.cron", "*/15 * * * *")
	v.SetDefault("scheduler.lookback", "24h")

	// SMTP relay filter
	v.SetDefault("relay.enabled", false)
	v.SetDefault("relay.listen_address", "0.0.0.0:10025")
	v.SetDefault("relay.block_spam", false)
	v.SetDefault("relay.next_hop.address", "localhost")
	v.SetDefault("relay.next_hop.port", 10026)
	v.SetDefault("relay.headers.category", "X-Triage-Spam-Category")
	v.SetDefault("relay.headers.confidence", "X-Triage-Spam-Confidence")
	v.SetDefault("relay.headers.project", "X-Triage-Project")
	v.SetDefault("relay.headers.reason", "X-Triage-Reason")

	// Spam defaults
	v.SetDefault("spam.whitelisted_domains", []string{})

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "168h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/triage_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/mail_triage?parseTime=true")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "triage:")

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

// durationOr returns the duration at key or def if it is unset or malformed
func (c *Config) durationOr(key string, def time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil {
		return def
	}
	return d
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
