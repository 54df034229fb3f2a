package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTelegramToken(t *testing.T) {
	v := NewValidator()

	t.Run("valid token", func(t *testing.T) {
		err := v.ValidateTelegramToken("123456789:ABCdefGHIjklMNOpqrsTUVwxyz")
		assert.NoError(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		err := v.ValidateTelegramToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		err := v.ValidateTelegramToken("")
		assert.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		command string
		wantErr bool
	}{
		{"simple", "extract", false},
		{"underscore and digits", "login_2", false},
		{"leading slash", "/extract", true},
		{"uppercase", "Extract", true},
		{"empty", "", true},
		{"too long", "abcdefghijklmnopqrstuvwxyz0123456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCommand(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateBaseURL("https://idp.example.com"))
	assert.NoError(t, v.ValidateBaseURL("http://127.0.0.1:8080/api"))
	assert.Error(t, v.ValidateBaseURL(""))
	assert.Error(t, v.ValidateBaseURL("ftp://idp.example.com"))
	assert.Error(t, v.ValidateBaseURL("https://"))
}

func TestValidateEndpointPath(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"absolute", "/accounts/login", false},
		{"root", "/", false},
		{"relative", "accounts/login", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateEndpointPath("login_path", tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			assert.NoError(t, v.ValidateLogLevel(level))
		})
	}

	t.Run("invalid level", func(t *testing.T) {
		assert.Error(t, v.ValidateLogLevel("trace"))
	})
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSchedule("@every 1m"))
	assert.NoError(t, v.ValidateSchedule("*/5 * * * *"))
	assert.Error(t, v.ValidateSchedule("every minute"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(validConfig()))
	})

	t.Run("metrics without listen address", func(t *testing.T) {
		cfg := validConfig()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = ""
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("no token source", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.TokenField = ""
		cfg.Provider.TokenCookie = ""
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("relative login path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.LoginPath = "login"
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("empty two-factor path", func(t *testing.T) {
		cfg := validConfig()
		cfg.Provider.TwoFactorPath = ""
		assert.Len(t, v.ValidateConfig(cfg), 1)
	})

	t.Run("negative idle timeout", func(t *testing.T) {
		cfg := validConfig()
		cfg.Flow.IdleTimeoutMinutes = -1
		assert.NotEmpty(t, v.ValidateConfig(cfg))
	})
}
