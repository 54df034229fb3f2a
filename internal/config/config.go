package config

import (
	"encoding/json"
	"errors"
	"time"
)

// Config represents the sessionbot configuration
type Config struct {
	// Telegram transport
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Identity provider endpoint
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Conversation flow
	Flow FlowConfig `json:"flow" mapstructure:"flow"`

	// Durable log and transient artifacts
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken    string  `json:"bot_token" mapstructure:"bot_token"`
	Allowlist   []int64 `json:"allowlist" mapstructure:"allowlist"`       // empty means any chat
	PollTimeout int     `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
}

// ProviderConfig describes the HTTP identity provider
type ProviderConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	LoginPath      string `json:"login_path" mapstructure:"login_path"`
	TwoFactorPath  string `json:"two_factor_path" mapstructure:"two_factor_path"`
	TokenField     string `json:"token_field" mapstructure:"token_field"`   // JSON path of the token in a success body
	TokenCookie    string `json:"token_cookie" mapstructure:"token_cookie"` // cookie consulted when the body has no token
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent      string `json:"user_agent" mapstructure:"user_agent"`
}

// FlowConfig holds conversation settings
type FlowConfig struct {
	EntryCommand       string `json:"entry_command" mapstructure:"entry_command"`
	CancelCommand      string `json:"cancel_command" mapstructure:"cancel_command"`
	IdleTimeoutMinutes int    `json:"idle_timeout_minutes" mapstructure:"idle_timeout_minutes"` // 0 disables expiry
	JanitorSchedule    string `json:"janitor_schedule" mapstructure:"janitor_schedule"`
}

// StorageConfig holds persistence paths
type StorageConfig struct {
	SessionsLog string `json:"sessions_log" mapstructure:"sessions_log"`
	ArtifactDir string `json:"artifact_dir" mapstructure:"artifact_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Provider: ProviderConfig{
			LoginPath:      "/accounts/login",
			TwoFactorPath:  "/accounts/login/two_factor",
			TokenField:     "session_id",
			TokenCookie:    "sessionid",
			TimeoutSeconds: 30,
			UserAgent:      "sessionbot/0.1",
		},
		Flow: FlowConfig{
			EntryCommand:       "extract",
			CancelCommand:      "cancel",
			IdleTimeoutMinutes: 10,
			JanitorSchedule:    "@every 1m",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// IdleTimeout returns the idle expiry as a duration
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Flow.IdleTimeoutMinutes) * time.Minute
}

// ProviderTimeout returns the per-request provider timeout
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config with the bot token masked
func (c *Config) String() string {
	masked := *c
	if masked.Telegram.BotToken != "" {
		masked.Telegram.BotToken = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is usable for running the bot
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
