package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider struct {
		Type       string   `yaml:"type"`        // "alphavantage" or "yahoo"
		OutputSize string   `yaml:"output_size"` // alphavantage: "compact" or "full"
		Period     string   `yaml:"period"`      // yahoo: 1d,5d,1mo,3mo,6mo,1y,2y,5y,10y,max
		Interval   string   `yaml:"interval"`    // yahoo: 1d,1wk,1mo
		Symbols    []string `yaml:"symbols"`
	} `yaml:"provider"`
	Storage struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"storage"`
	Indicators []string `yaml:"indicators"` // subset of sma, ema, rsi, macd, bollinger
	Sentiment  struct {
		Enabled     bool   `yaml:"enabled"`
		SourceURL   string `yaml:"source_url"` // JSON endpoint returning {"articles": [...]}
		MaxArticles int    `yaml:"max_articles"`
		CacheTTLMin int    `yaml:"cache_ttl_minutes"`
	} `yaml:"sentiment"`
	LLM struct {
		Provider    string  `yaml:"provider"` // OPENAI, ANTHROPIC, GROK, DEEPSEEK
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
}

var validIndicators = map[string]bool{
	"sma": true, "ema": true, "rsi": true, "macd": true, "bollinger": true,
}

func (c *Config) Validate() error {
	if c.Provider.Type != "alphavantage" && c.Provider.Type != "yahoo" {
		return fmt.Errorf("invalid provider.type '%s': must be 'alphavantage' or 'yahoo'", c.Provider.Type)
	}
	if len(c.Provider.Symbols) == 0 {
		return errors.New("provider.symbols cannot be empty")
	}
	if c.Provider.OutputSize != "compact" && c.Provider.OutputSize != "full" {
		return fmt.Errorf("provider.output_size must be 'compact' or 'full', got '%s'", c.Provider.OutputSize)
	}
	if c.Storage.Enabled && c.Storage.Dir == "" {
		return errors.New("storage.dir is required when storage.enabled is true")
	}
	for _, ind := range c.Indicators {
		if !validIndicators[ind] {
			return fmt.Errorf("unknown indicator '%s'", ind)
		}
	}
	if c.Sentiment.MaxArticles < 0 {
		return fmt.Errorf("sentiment.max_articles must be non-negative, got %d", c.Sentiment.MaxArticles)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Provider.OutputSize == "" {
		c.Provider.OutputSize = "compact"
	}
	if c.Provider.Period == "" {
		c.Provider.Period = "1mo"
	}
	if c.Provider.Interval == "" {
		c.Provider.Interval = "1d"
	}
	if len(c.Indicators) == 0 {
		c.Indicators = []string{"sma", "ema", "rsi", "macd", "bollinger"}
	}
	if c.Sentiment.MaxArticles == 0 {
		c.Sentiment.MaxArticles = 15
	}
	if c.Sentiment.CacheTTLMin == 0 {
		c.Sentiment.CacheTTLMin = 60
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
