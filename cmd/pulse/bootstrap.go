package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"marketpulse/internal/agent"
	"marketpulse/internal/agent/sentiment"
	"marketpulse/internal/agent/technical"
	"marketpulse/internal/llm"
	"marketpulse/internal/llm/llmobs"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata"
	"marketpulse/internal/marketdata/archive"
	"marketpulse/internal/marketdata/mdobs"
	"marketpulse/internal/store"
	"marketpulse/internal/trace"
)

// initializeSystem initializes env, logger, and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	path := os.Getenv("PULSE_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// sweepArchive compresses old archive files if retention is configured
func sweepArchive(ctx context.Context, cfg *store.Config) {
	if !cfg.Storage.Enabled {
		return
	}
	v := os.Getenv("PULSE_ARCHIVE_RETENTION_DAYS")
	if v == "" {
		return
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid PULSE_ARCHIVE_RETENTION_DAYS", "value", v)
		return
	}
	if err := archive.CompressOlder(cfg.Storage.Dir, days); err != nil {
		logger.Warn(ctx, "Failed to compress old archives", "error", err)
	}
}

// initializeProvider constructs the market data provider with observability
func initializeProvider(ctx context.Context, cfg *store.Config) (marketdata.Provider, error) {
	provider, err := marketdata.New(cfg.Provider.Type, marketdata.Options{
		Store:      cfg.Storage.Enabled,
		StorageDir: cfg.Storage.Dir,
		OutputSize: cfg.Provider.OutputSize,
		Period:     cfg.Provider.Period,
		Interval:   cfg.Provider.Interval,
	})
	if err != nil {
		return nil, err
	}

	if !provider.HasValidCredentials() {
		logger.Warn(ctx, "Provider credentials missing - fetches will fail",
			"provider", provider.Name())
	}

	return mdobs.Wrap(provider), nil
}

// initializeAgents builds the agent registry
func initializeAgents(ctx context.Context, cfg *store.Config) (*agent.Registry, error) {
	registry := agent.NewRegistry()

	if err := registry.Register(technical.New()); err != nil {
		return nil, err
	}

	if cfg.Sentiment.Enabled {
		if err := registry.Register(sentiment.New(sentiment.Config{
			SourceURL:   cfg.Sentiment.SourceURL,
			MaxArticles: cfg.Sentiment.MaxArticles,
			CacheTTL:    time.Duration(cfg.Sentiment.CacheTTLMin) * time.Minute,
		})); err != nil {
			return nil, err
		}
	} else {
		logger.Info(ctx, "Sentiment analysis disabled in config")
	}

	for _, name := range registry.List() {
		a, _ := registry.Get(name)
		if err := a.Init(ctx); err != nil {
			return nil, fmt.Errorf("init agent %s: %w", name, err)
		}
	}

	return registry, nil
}

// initializeConnector constructs the LLM connector with observability,
// or nil when no provider is configured
func initializeConnector(ctx context.Context, cfg *store.Config) llm.Connector {
	if cfg.LLM.Provider == "" {
		logger.Info(ctx, "No LLM provider configured - skipping narrative summary")
		return nil
	}

	connector, err := llm.New(cfg.LLM.Provider)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to construct LLM connector", err,
			"provider", cfg.LLM.Provider)
		return nil
	}

	return llmobs.Wrap(connector)
}
