package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  type: yahoo
  symbols: [AAPL, MSFT]
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "yahoo", c.Provider.Type)
	require.Equal(t, []string{"AAPL", "MSFT"}, c.Provider.Symbols)
	require.Equal(t, "compact", c.Provider.OutputSize)
	require.Equal(t, "1mo", c.Provider.Period)
	require.Equal(t, "1d", c.Provider.Interval)
	require.Equal(t, []string{"sma", "ema", "rsi", "macd", "bollinger"}, c.Indicators)
	require.Equal(t, 15, c.Sentiment.MaxArticles)
	require.Equal(t, 60, c.Sentiment.CacheTTLMin)
	require.False(t, c.Storage.Enabled)
}

func TestLoadConfigFull(t *testing.T) {
	path := writeConfig(t, `
provider:
  type: alphavantage
  output_size: full
  symbols: [IBM]
storage:
  enabled: true
  dir: /tmp/archive
indicators: [rsi, macd]
sentiment:
  enabled: true
  source_url: https://example.com/news?symbol={symbol}
  max_articles: 5
  cache_ttl_minutes: 30
llm:
  provider: ANTHROPIC
  model: claude-sonnet-4-20250514
  max_tokens: 512
  temperature: 0.3
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, "full", c.Provider.OutputSize)
	require.True(t, c.Storage.Enabled)
	require.Equal(t, "/tmp/archive", c.Storage.Dir)
	require.Equal(t, []string{"rsi", "macd"}, c.Indicators)
	require.Equal(t, 5, c.Sentiment.MaxArticles)
	require.Equal(t, 30, c.Sentiment.CacheTTLMin)
	require.Equal(t, "ANTHROPIC", c.LLM.Provider)
	require.Equal(t, 512, c.LLM.MaxTokens)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider.Type = "bloomberg" },
			wantMsg: "invalid provider.type",
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Provider.Symbols = nil },
			wantMsg: "symbols cannot be empty",
		},
		{
			name:    "bad output size",
			mutate:  func(c *Config) { c.Provider.OutputSize = "huge" },
			wantMsg: "output_size",
		},
		{
			name: "storage without dir",
			mutate: func(c *Config) {
				c.Storage.Enabled = true
				c.Storage.Dir = ""
			},
			wantMsg: "storage.dir is required",
		},
		{
			name:    "unknown indicator",
			mutate:  func(c *Config) { c.Indicators = []string{"vwap"} },
			wantMsg: "unknown indicator",
		},
		{
			name:    "negative max articles",
			mutate:  func(c *Config) { c.Sentiment.MaxArticles = -1 },
			wantMsg: "max_articles",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Config{}
			c.Provider.Type = "yahoo"
			c.Provider.OutputSize = "compact"
			c.Provider.Symbols = []string{"AAPL"}

			tc.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}
