package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	LogLevel      string
	HTTPTimeout   time.Duration
	RetryAttempts int

	// Language model
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	LLMTimeout    time.Duration

	// Search Console
	AnalyticsAccessToken     string
	AnalyticsCredentialsFile string
	AnalyticsEndpoint        string
	AnalyticsTimeout         time.Duration
	AnalyticsRowLimit        int

	// Form defaults
	DefaultSiteURL string
	DefaultWindow  string

	// Results and export
	ExportSecret  string
	ResultTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("RETRY_ATTEMPTS", 3)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "45s")
	v.SetDefault("ANALYTICS_TIMEOUT", "30s")
	v.SetDefault("ANALYTICS_ROW_LIMIT", 50)
	v.SetDefault("DEFAULT_SITE_URL", "")
	v.SetDefault("DEFAULT_WINDOW", "last_30_days")
	v.SetDefault("RESULT_TTL", "1h")
	v.SetDefault("REDIS_DB", 0)
}

// FromViper builds a Config from an already-populated viper instance.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Port:          v.GetString("PORT"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		HTTPTimeout:   v.GetDuration("HTTP_TIMEOUT"),
		RetryAttempts: v.GetInt("RETRY_ATTEMPTS"),

		OpenAIAPIKey:  v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL: v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:   v.GetString("OPENAI_MODEL"),
		LLMTimeout:    v.GetDuration("LLM_TIMEOUT"),

		AnalyticsAccessToken:     v.GetString("ANALYTICS_ACCESS_TOKEN"),
		AnalyticsCredentialsFile: v.GetString("ANALYTICS_CREDENTIALS_FILE"),
		AnalyticsEndpoint:        v.GetString("ANALYTICS_ENDPOINT"),
		AnalyticsTimeout:         v.GetDuration("ANALYTICS_TIMEOUT"),
		AnalyticsRowLimit:        v.GetInt("ANALYTICS_ROW_LIMIT"),

		DefaultSiteURL: v.GetString("DEFAULT_SITE_URL"),
		DefaultWindow:  v.GetString("DEFAULT_WINDOW"),

		ExportSecret:  v.GetString("EXPORT_SECRET"),
		ResultTTL:     v.GetDuration("RESULT_TTL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
	}
}

// Defaults returns the configuration used when no environment is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	return FromViper(v)
}

func (c *Config) Validate() error {
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	if c.AnalyticsRowLimit < 1 || c.AnalyticsRowLimit > 25000 {
		return fmt.Errorf("ANALYTICS_ROW_LIMIT must be between 1 and 25000, got %d", c.AnalyticsRowLimit)
	}
	if c.LLMTimeout <= 0 || c.AnalyticsTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT and ANALYTICS_TIMEOUT must be positive")
	}
	return nil
}
