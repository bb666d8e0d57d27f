package config

import (
	"testing"
	"time"

	apperrors "askme/errors"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := load(viper.New(), zap.NewNop())

	require.Equal(t, 8080, cfg.WebPort)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, ProviderGemini, cfg.LLMProvider)
	require.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	require.True(t, cfg.StreamResponses)
	require.False(t, cfg.IncludeHistory)
	require.Equal(t, 120*time.Second, cfg.LLMRequestTimeout)
	require.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	require.Equal(t, 720*time.Hour, cfg.SessionRetentionAge)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("STORE_DRIVER", "PGX")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("LLM_REQUEST_TIMEOUT", "30")
	t.Setenv("GEMINI_API_URL", "http://localhost:1234/v1beta/")
	t.Setenv("INCLUDE_HISTORY", "true")

	cfg := load(viper.New(), zap.NewNop())
	require.Equal(t, 9090, cfg.WebPort)
	require.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.Equal(t, ProviderAnthropic, cfg.LLMProvider)
	require.Equal(t, 30*time.Second, cfg.LLMRequestTimeout)
	require.Equal(t, "http://localhost:1234/v1beta", cfg.GeminiAPIURL)
	require.True(t, cfg.IncludeHistory)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			WebPort:           8080,
			StoreDriver:       DriverSQLite,
			LLMProvider:       ProviderGemini,
			LLMRequestTimeout: time.Minute,
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"port":     func(c *Config) { c.WebPort = 0 },
		"driver":   func(c *Config) { c.StoreDriver = "mysql" },
		"provider": func(c *Config) { c.LLMProvider = "other" },
		"timeout":  func(c *Config) { c.LLMRequestTimeout = 0 },
		"cleanup":  func(c *Config) { c.CleanupEnabled = true },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.True(t, apperrors.IsInvalidInput(cfg.Validate()))
		})
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}
