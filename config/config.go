package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	apperrors "askme/errors"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the application's configuration
type Config struct {
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	WebPort     int    `mapstructure:"WEB_PORT"`
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	LLMProvider        string `mapstructure:"LLM_PROVIDER"`
	GeminiAPIURL       string `mapstructure:"GEMINI_API_URL"`
	GeminiAPIKey       string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel        string `mapstructure:"GEMINI_MODEL"`
	AnthropicAPIKey    string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL   string `mapstructure:"ANTHROPIC_BASE_URL"`
	AnthropicModel     string `mapstructure:"ANTHROPIC_MODEL"`
	AnthropicMaxTokens int    `mapstructure:"ANTHROPIC_MAX_TOKENS"`

	StreamResponses       bool `mapstructure:"STREAM_RESPONSES"`
	IncludeHistory        bool `mapstructure:"INCLUDE_HISTORY"`
	HistoryContextTurns   int  `mapstructure:"HISTORY_CONTEXT_TURNS"`
	LLMRequestTimeoutSecs int  `mapstructure:"LLM_REQUEST_TIMEOUT"`

	CleanupEnabled       bool `mapstructure:"CLEANUP_ENABLED"`
	CleanupIntervalHours int  `mapstructure:"CLEANUP_INTERVAL"`
	SessionRetentionHrs  int  `mapstructure:"SESSION_RETENTION_AGE"`

	RenderCacheSize     int  `mapstructure:"RENDER_CACHE_SIZE"`
	TitleMaxLength      int  `mapstructure:"TITLE_MAX_LENGTH"`
	SessionCookieSecure bool `mapstructure:"SESSION_COOKIE_SECURE"`

	// Derived from the integer second/hour keys above.
	LLMRequestTimeout   time.Duration `mapstructure:"-"`
	CleanupInterval     time.Duration `mapstructure:"-"`
	SessionRetentionAge time.Duration `mapstructure:"-"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

func Load(logger *zap.Logger) *Config {
	return load(viper.New(), logger)
}

func load(v *viper.Viper, logger *zap.Logger) *Config {
	var config Config
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")        // For running locally
	v.AddConfigPath("../")      // For running from docker subdir
	v.AddConfigPath("./config") // Common config folder
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		// Config unmarshaling is critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to decode config into struct", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to decode config into struct: %v\n", err)
			os.Exit(1)
		}
	}

	config.normalize()
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WEB_PORT", 8080)
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DATABASE_URL", "askme.db")
	v.SetDefault("LLM_PROVIDER", ProviderGemini)
	v.SetDefault("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("ANTHROPIC_API_KEY", "")
	v.SetDefault("ANTHROPIC_BASE_URL", "")
	v.SetDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest")
	v.SetDefault("ANTHROPIC_MAX_TOKENS", 1024)
	v.SetDefault("STREAM_RESPONSES", true)
	v.SetDefault("INCLUDE_HISTORY", false)
	v.SetDefault("HISTORY_CONTEXT_TURNS", 10)
	v.SetDefault("LLM_REQUEST_TIMEOUT", 120)
	v.SetDefault("CLEANUP_ENABLED", false)
	v.SetDefault("CLEANUP_INTERVAL", 24)
	v.SetDefault("SESSION_RETENTION_AGE", 720)
	v.SetDefault("RENDER_CACHE_SIZE", 256)
	v.SetDefault("TITLE_MAX_LENGTH", 60)
	v.SetDefault("SESSION_COOKIE_SECURE", false)
}

func (c *Config) normalize() {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "pgx" {
		c.StoreDriver = DriverPostgres
	}
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.GeminiAPIURL = strings.TrimRight(strings.TrimSpace(c.GeminiAPIURL), "/")

	if c.HistoryContextTurns < 0 {
		c.HistoryContextTurns = 0
	}
	if c.RenderCacheSize <= 0 {
		c.RenderCacheSize = 256
	}
	if c.TitleMaxLength <= 0 {
		c.TitleMaxLength = 60
	}
	if c.AnthropicMaxTokens <= 0 {
		c.AnthropicMaxTokens = 1024
	}

	// Convert seconds/hours to proper time.Duration
	c.LLMRequestTimeout = time.Duration(c.LLMRequestTimeoutSecs) * time.Second
	c.CleanupInterval = time.Duration(c.CleanupIntervalHours) * time.Hour
	c.SessionRetentionAge = time.Duration(c.SessionRetentionHrs) * time.Hour
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput, "WEB_PORT %d out of range", c.WebPort)
	}
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.LLMProvider {
	case ProviderGemini, ProviderAnthropic:
	default:
		return apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMRequestTimeout <= 0 {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "LLM_REQUEST_TIMEOUT must be positive")
	}
	if c.CleanupEnabled && (c.CleanupInterval <= 0 || c.SessionRetentionAge <= 0) {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "cleanup requires positive CLEANUP_INTERVAL and SESSION_RETENTION_AGE")
	}
	return nil
}
