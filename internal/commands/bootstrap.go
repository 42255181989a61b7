package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"search-agent/internal/client"
	"search-agent/internal/config"
	"search-agent/internal/export"
	"search-agent/internal/pipeline"
	"search-agent/internal/storage"
)

// App holds the components shared by every command.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Pipeline *pipeline.Pipeline
	Exporter *export.Exporter
	Fallback pipeline.Credentials
}

func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stderr)
	return logger
}

func Bootstrap() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg.LogLevel)

	fallback, err := FallbackCredentials(cfg)
	if err != nil {
		return nil, err
	}

	httpClient := client.NewHTTPClient(cfg, logger)
	factories := pipeline.DefaultFactories(pipeline.ServiceOptions{
		LLMBaseURL:        cfg.OpenAIBaseURL,
		LLMModel:          cfg.OpenAIModel,
		LLMTimeout:        cfg.LLMTimeout,
		AnalyticsEndpoint: cfg.AnalyticsEndpoint,
		AnalyticsTimeout:  cfg.AnalyticsTimeout,
		RowLimit:          cfg.AnalyticsRowLimit,
		HTTPClient:        httpClient.Client(),
	}, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pipeline: pipeline.New(factories, cfg.DefaultWindow, logger),
		Exporter: export.NewExporter(cfg.ExportSecret, logger),
		Fallback: fallback,
	}, nil
}

// FallbackCredentials reads the configured credentials used when a request brings none.
func FallbackCredentials(cfg *config.Config) (pipeline.Credentials, error) {
	creds := pipeline.Credentials{
		AnalyticsToken: cfg.AnalyticsAccessToken,
		LLMAPIKey:      cfg.OpenAIAPIKey,
	}
	if cfg.AnalyticsCredentialsFile != "" {
		data, err := os.ReadFile(cfg.AnalyticsCredentialsFile)
		if err != nil {
			return creds, fmt.Errorf("failed to read analytics credentials file: %w", err)
		}
		creds.AnalyticsCredentialsJSON = data
	}
	return creds, nil
}

// NewResultStore picks Redis when an address is configured.
func NewResultStore(cfg *config.Config, logger *logrus.Logger) storage.ResultStore {
	if cfg.RedisAddr == "" {
		logger.Info("Using in-memory result store")
		return storage.NewMemoryStore(cfg.ResultTTL)
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Using Redis result store")
	return storage.NewRedisStore(storage.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.ResultTTL,
	})
}
