package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	telegramTokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	commandPattern       = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateTelegramToken validates a Telegram bot token
func (v *Validator) ValidateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram bot token cannot be empty")
	}

	// Telegram bot tokens have format: <bot_id>:<token>
	if !telegramTokenPattern.MatchString(token) {
		return fmt.Errorf("invalid Telegram bot token format")
	}

	return nil
}

// ValidateCommand validates a bot command name (without the leading slash)
func (v *Validator) ValidateCommand(name string) error {
	if !commandPattern.MatchString(name) {
		return fmt.Errorf("invalid command %q (lowercase letters, digits and underscore, at most 32)", name)
	}
	return nil
}

// ValidateBaseURL validates the identity provider base URL
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("provider base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid provider base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("provider base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("provider base_url has no host")
	}
	return nil
}

// ValidateEndpointPath validates a provider endpoint path relative to base_url
func (v *Validator) ValidateEndpointPath(name, path string) error {
	if path == "" {
		return fmt.Errorf("provider %s is required", name)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("provider %s must start with '/', got %q", name, path)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron spec or descriptor such as "@every 1m"
func (v *Validator) ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidateTelegramToken(cfg.Telegram.BotToken); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("telegram poll_timeout must be >= 0"))
	}

	if err := v.ValidateBaseURL(cfg.Provider.BaseURL); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateEndpointPath("login_path", cfg.Provider.LoginPath); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateEndpointPath("two_factor_path", cfg.Provider.TwoFactorPath); err != nil {
		errs = append(errs, err)
	}
	if cfg.Provider.TokenField == "" && cfg.Provider.TokenCookie == "" {
		errs = append(errs, fmt.Errorf("provider needs token_field or token_cookie"))
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("provider timeout_seconds must be > 0"))
	}

	if err := v.ValidateCommand(cfg.Flow.EntryCommand); err != nil {
		errs = append(errs, fmt.Errorf("flow entry_command: %w", err))
	}
	if err := v.ValidateCommand(cfg.Flow.CancelCommand); err != nil {
		errs = append(errs, fmt.Errorf("flow cancel_command: %w", err))
	}
	if cfg.Flow.EntryCommand == cfg.Flow.CancelCommand {
		errs = append(errs, fmt.Errorf("flow entry_command and cancel_command must differ"))
	}
	for _, reserved := range []string{"start", "help"} {
		if cfg.Flow.EntryCommand == reserved || cfg.Flow.CancelCommand == reserved {
			errs = append(errs, fmt.Errorf("flow commands cannot use reserved command /%s", reserved))
		}
	}
	if cfg.Flow.IdleTimeoutMinutes < 0 {
		errs = append(errs, fmt.Errorf("flow idle_timeout_minutes must be >= 0"))
	}
	if cfg.Flow.IdleTimeoutMinutes > 0 {
		if err := v.ValidateSchedule(cfg.Flow.JanitorSchedule); err != nil {
			errs = append(errs, err)
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, fmt.Errorf("metrics listen address is required when metrics are enabled"))
	}

	return errs
}
