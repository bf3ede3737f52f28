package config

import (
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/core"
)

// ClassifierConfig represents the classification configuration
type ClassifierConfig struct {
	// Provider selects the completion backend: anthropic, grok, openai, gemini or bedrock
	Provider string
	// Variant selects combined or sequential prompting. Empty derives it from the provider.
	Variant             string
	Strategy            string
	DefiniteThreshold   float64
	PossibleThreshold   float64
	AutoAssignThreshold float64
	MinContentLength    int
}

// AnthropicConfig represents the configuration for the Anthropic Messages API
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIConfig represents the configuration for an OpenAI-compatible backend
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey    string
	ModelName string
	TopP      float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region  string
	ModelID string
}

// RetryConfig represents the quota backoff configuration
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
}

// GmailConfig represents the Gmail pacing configuration
type GmailConfig struct {
	PageSize     int
	BatchSize    int
	RequestDelay time.Duration
	BatchDelay   time.Duration
	// Endpoint overrides the API base URL
	Endpoint string
}

// GraphConfig represents the Microsoft Graph configuration
type GraphConfig struct {
	BaseURL  string
	PageSize int
}

// AccountConfig is one mailbox the service can read
type AccountConfig struct {
	Name     string             `mapstructure:"name"`
	Provider string             `mapstructure:"provider"`
	Gmail    GmailAccountConfig `mapstructure:"gmail"`
	IMAP     IMAPAccountConfig  `mapstructure:"imap"`
	Graph    GraphAccountConfig `mapstructure:"graph"`
}

// GmailAccountConfig holds the OAuth2 credentials of a Gmail account
type GmailAccountConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// IMAPAccountConfig holds the connection settings of an IMAP account
type IMAPAccountConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      *bool  `mapstructure:"tls"`
}

// UseTLS reports whether implicit TLS is used. STARTTLS is used otherwise.
func (c IMAPAccountConfig) UseTLS() bool {
	return c.TLS == nil || *c.TLS
}

// GraphAccountConfig holds the bearer token of a Graph account
type GraphAccountConfig struct {
	AccessToken string `mapstructure:"access_token"`
}

// CacheConfig represents the verdict cache configuration
type CacheConfig struct {
	Type             string
	Enabled          bool
	TTL              time.Duration
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
}

// SchedulerConfig represents the ingestion schedule
type SchedulerConfig struct {
	Enabled  bool
	Cron     string
	Lookback time.Duration
}

// RelayConfig represents the SMTP relay filter configuration
type RelayConfig struct {
	Enabled          bool
	ListenAddress    string
	BlockSpam        bool
	NextHopAddress   string
	NextHopPort      int
	CategoryHeader   string
	ConfidenceHeader string
	ProjectHeader    string
	ReasonHeader     string
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// GetClassifier returns the classification configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider:            c.GetString("classifier.provider"),
		Variant:             c.GetString("classifier.variant"),
		Strategy:            c.GetString("classifier.strategy"),
		DefiniteThreshold:   c.GetFloat64("classifier.thresholds.definite"),
		PossibleThreshold:   c.GetFloat64("classifier.thresholds.possible"),
		AutoAssignThreshold: c.GetFloat64("classifier.auto_assign_threshold"),
		MinContentLength:    c.GetInt("classifier.min_content_length"),
	}
}

// GetAnthropic returns the Anthropic configuration
func (c *Config) GetAnthropic() AnthropicConfig {
	return AnthropicConfig{
		APIKey:  c.GetString("anthropic.api_key"),
		BaseURL: c.GetString("anthropic.base_url"),
		Model:   c.GetString("anthropic.model"),
		Timeout: c.durationOr("anthropic.timeout", 60*time.Second),
	}
}

// GetGrok returns the Grok configuration
func (c *Config) GetGrok() OpenAIConfig {
	return c.openAICompatible("grok")
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return c.openAICompatible("openai")
}

func (c *Config) openAICompatible(prefix string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:  c.GetString(prefix + ".api_key"),
		BaseURL: c.GetString(prefix + ".base_url"),
		Model:   c.GetString(prefix + ".model"),
		Timeout: c.durationOr(prefix+".timeout", 30*time.Second),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:    c.GetString("gemini.api_key"),
		ModelName: c.GetString("gemini.model_name"),
		TopP:      float32(c.GetFloat64("gemini.top_p")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:  c.GetString("bedrock.region"),
		ModelID: c.GetString("bedrock.model_id"),
	}
}

// GetRetry returns the retry configuration
func (c *Config) GetRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:   c.GetInt("retry.max_retries"),
		InitialDelay: c.durationOr("retry.initial_delay", 2*time.Second),
	}
}

// GetGmail returns the Gmail pacing configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		PageSize:     c.GetInt("gmail.page_size"),
		BatchSize:    c.GetInt("gmail.batch_size"),
		RequestDelay: c.durationOr("gmail.request_delay", 35*time.Millisecond),
		BatchDelay:   c.durationOr("gmail.batch_delay", 500*time.Millisecond),
		Endpoint:     c.GetString("gmail.endpoint"),
	}
}

// GetGraph returns the Graph configuration
func (c *Config) GetGraph() GraphConfig {
	return GraphConfig{
		BaseURL:  c.GetString("graph.base_url"),
		PageSize: c.GetInt("graph.page_size"),
	}
}

// GetAccounts returns the configured mail accounts
func (c *Config) GetAccounts() ([]AccountConfig, error) {
	var accounts []AccountConfig
	if err := c.v.UnmarshalKey("accounts", &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].IMAP.Port == 0 {
			accounts[i].IMAP.Port = c.GetInt("imap.port")
		}
	}
	return accounts, nil
}

// GetAccount returns the account with the given name
func (c *Config) GetAccount(name string) (AccountConfig, error) {
	accounts, err := c.GetAccounts()
	if err != nil {
		return AccountConfig{}, err
	}
	for _, a := range accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return AccountConfig{}, &core.ConfigurationError{Setting: "accounts", Message: fmt.Sprintf("account %q is not configured", name)}
}

// GetProjects returns the project list used for routing
func (c *Config) GetProjects() ([]core.ProjectDescriptor, error) {
	var projects []core.ProjectDescriptor
	if err := c.v.UnmarshalKey("projects", &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// GetCache returns the cache configuration
func (c *Config) GetCache() CacheConfig {
	return CacheConfig{
		Type:             c.GetString("cache.type"),
		Enabled:          c.GetBool("cache.enabled"),
		TTL:              c.durationOr("cache.ttl", 168*time.Hour),
		CleanupFrequency: c.durationOr("cache.cleanup_frequency", time.Hour),
		SQLitePath:       c.GetString("cache.sqlite_path"),
		MySQLDSN:         c.GetString("cache.mysql_dsn"),
		RedisAddress:     c.GetString("cache.redis.address"),
		RedisPassword:    c.GetString("cache.redis.password"),
		RedisDB:          c.GetInt("cache.redis.db"),
		RedisPrefix:      c.GetString("cache.redis.prefix"),
	}
}

// GetScheduler returns the scheduler configuration
func (c *Config) GetScheduler() SchedulerConfig {
	return SchedulerConfig{
		Enabled:  c.GetBool("scheduler.enabled"),
		Cron:     c.GetString("scheduler.cron"),
		Lookback: c.durationOr("scheduler.lookback", 24*time.Hour),
	}
}

// GetRelay returns the SMTP relay configuration
func (c *Config) GetRelay() RelayConfig {
	return RelayConfig{
		Enabled:          c.GetBool("relay.enabled"),
		ListenAddress:    c.GetString("relay.listen_address"),
		BlockSpam:        c.GetBool("relay.block_spam"),
		NextHopAddress:   c.GetString("relay.next_hop.address"),
		NextHopPort:      c.GetInt("relay.next_hop.port"),
		CategoryHeader:   c.GetString("relay.headers.category"),
		ConfidenceHeader: c.GetString("relay.headers.confidence"),
		ProjectHeader:    c.GetString("relay.headers.project"),
		ReasonHeader:     c.GetString("relay.headers.reason"),
	}
}

// GetLogging returns the logging configuration
func (c *Config) GetLogging() LoggingConfig {
	return LoggingConfig{
		Level:  c.GetString("logging.level"),
		Format: c.GetString("logging.format"),
	}
}

// GetWhitelistedDomains returns the sender domains that bypass spam classification
func (c *Config) GetWhitelistedDomains() []string {
	return c.GetStringSlice("spam.whitelisted_domains")
}
