package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Telegram.BotToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"
	cfg.Provider.BaseURL = "https://idp.example.com"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "extract", cfg.Flow.EntryCommand)
	assert.Equal(t, "cancel", cfg.Flow.CancelCommand)
	assert.Equal(t, 10, cfg.Flow.IdleTimeoutMinutes)
	assert.Equal(t, "@every 1m", cfg.Flow.JanitorSchedule)
	assert.Equal(t, 60, cfg.Telegram.PollTimeout)
	assert.Equal(t, "session_id", cfg.Provider.TokenField)
	assert.Equal(t, "sessionid", cfg.Provider.TokenCookie)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestConfigDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout())
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("missing bot token", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram.BotToken = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot token")
	})

	t.Run("missing provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.BaseURL = ""

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "base_url")
	})

	t.Run("entry and cancel collide", func(t *testing.T) {
		cfg := validConfig()
		cfg.Flow.CancelCommand = "extract"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must differ")
	})

	t.Run("reserved command", func(t *testing.T) {
		cfg := validConfig()
		cfg.Flow.EntryCommand = "help"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reserved")
	})

	t.Run("bad schedule ignored when expiry disabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.Flow.JanitorSchedule = "whenever"
		assert.Error(t, cfg.Validate())

		cfg.Flow.IdleTimeoutMinutes = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("multiple errors are joined", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "chatty"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot token")
		assert.Contains(t, err.Error(), "log level")
	})
}

func TestConfigString(t *testing.T) {
	cfg := validConfig()

	str := cfg.String()
	assert.NotEmpty(t, str)
	assert.Contains(t, str, `"entry_command": "extract"`)
	assert.NotContains(t, str, "ABCdefGHIjklMNOpqrsTUVwxyz")
	assert.Equal(t, "123456789:ABCdefGHIjklMNOpqrsTUVwxyz", cfg.Telegram.BotToken)
}
