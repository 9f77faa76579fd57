package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketpulse/internal/agent"
	"marketpulse/internal/agent/sentiment"
	"marketpulse/internal/agent/technical"
	"marketpulse/internal/llm"
	"marketpulse/internal/logger"
	"marketpulse/internal/marketdata"
	"marketpulse/internal/store"
	"marketpulse/internal/trace"
)

// symbolReport is the per-symbol output printed to stdout.
type symbolReport struct {
	Symbol    string             `json:"symbol"`
	Points    int                `json:"points"`
	Latest    *marketdata.Point  `json:"latest,omitempty"`
	Technical *technical.Report  `json:"technical,omitempty"`
	Sentiment *sentiment.Verdict `json:"sentiment,omitempty"`
}

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Run failed", err)
		_ = trace.Shutdown(context.Background())
		os.Exit(1)
	}

	_ = trace.Shutdown(context.Background())
}

func run(ctx context.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sweepArchive(ctx, cfg)

	provider, err := initializeProvider(ctx, cfg)
	if err != nil {
		return err
	}

	registry, err := initializeAgents(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.CleanupAll(context.Background()); err != nil {
			logger.Warn(ctx, "Agent cleanup failed", "error", err)
		}
	}()

	connector := initializeConnector(ctx, cfg)

	logger.Info(ctx, "Fetching market data",
		"provider", provider.Name(), "symbols", len(cfg.Provider.Symbols))

	series, summary := provider.FetchMultipleSymbols(ctx, cfg.Provider.Symbols)
	for symbol, reason := range summary.Failed {
		logger.Warn(ctx, "Symbol excluded from analysis", "symbol", symbol, "reason", reason)
	}

	reports := make([]symbolReport, 0, len(summary.Succeeded))
	for _, symbol := range summary.Succeeded {
		report, err := analyzeSymbol(ctx, registry, cfg, symbol, series[symbol])
		if err != nil {
			logger.ErrorWithErr(ctx, "Analysis failed", err, "symbol", symbol)
			continue
		}
		reports = append(reports, report)

		b, _ := json.Marshal(report)
		fmt.Println(string(b))
	}

	if connector != nil && len(reports) > 0 {
		if err := printNarrative(ctx, connector, cfg, reports); err != nil {
			logger.ErrorWithErr(ctx, "Narrative summary failed", err)
		}
	}

	return nil
}

// analyzeSymbol runs each registered agent over one symbol's series.
func analyzeSymbol(ctx context.Context, registry *agent.Registry, cfg *store.Config, symbol string, points []marketdata.Point) (symbolReport, error) {
	report := symbolReport{Symbol: symbol, Points: len(points)}
	if len(points) > 0 {
		report.Latest = &points[0]
	}

	if ta, ok := registry.Get(technical.AgentName); ok {
		res, err := ta.Execute(ctx, agent.Request{
			Symbol:  symbol,
			Payload: technical.Input{Points: points, Indicators: cfg.Indicators},
		})
		if err != nil {
			return symbolReport{}, err
		}
		if r, ok := res.Data.(technical.Report); ok {
			report.Technical = &r
		}
	}

	if sa, ok := registry.Get(sentiment.AgentName); ok {
		res, err := sa.Execute(ctx, agent.Request{Symbol: symbol})
		if err != nil {
			// Sentiment is advisory; a failed scrape never blocks the report.
			logger.Warn(ctx, "Sentiment unavailable", "symbol", symbol, "error", err)
		} else if v, ok := res.Data.(sentiment.Verdict); ok {
			report.Sentiment = &v
		}
	}

	return report, nil
}

// printNarrative asks the configured LLM for a short narrative over the
// day's signals and streams it to stdout.
func printNarrative(ctx context.Context, connector llm.Connector, cfg *store.Config, reports []symbolReport) error {
	state, err := json.Marshal(reports)
	if err != nil {
		return err
	}

	system := cfg.LLM.System
	if system == "" {
		system = "You are a market analyst. Summarize the technical and sentiment picture in plain language. Do not give financial advice."
	}

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: "Summarize today's signals:\n" + string(state)},
	}
	params := llm.Params{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}

	deltas, err := connector.Stream(ctx, messages, params)
	if err != nil {
		return err
	}

	for delta := range deltas {
		if delta.Err != nil {
			fmt.Println()
			return delta.Err
		}
		fmt.Print(delta.Content)
	}
	fmt.Println()
	return nil
}
