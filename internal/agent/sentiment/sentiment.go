// Package sentiment scores news articles and aggregates a per-symbol
// verdict. Scoring is delegated to the VADER implementation in
// github.com/jonreiter/govader; this package supplies articles,
// aggregates scores, and caches verdicts.
package sentiment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonreiter/govader"

	"marketpulse/internal/agent"
	"marketpulse/internal/httpx"
	"marketpulse/internal/logger"
	"marketpulse/internal/trace"
)

const AgentName = "sentiment"

// Article is one news item to score.
type Article struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

// ArticleScore is the per-article result from the scorer.
type ArticleScore struct {
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Score       float64 `json:"score"`
	Comparative float64 `json:"comparative"`
	Vote        string  `json:"vote"`
}

// Verdict is the aggregated sentiment for one symbol.
type Verdict struct {
	Symbol    string         `json:"symbol"`
	Overall   string         `json:"overall"`
	Score     float64        `json:"score"`
	Articles  []ArticleScore `json:"articles"`
	Timestamp int64          `json:"timestamp"`
}

// Input is the payload Execute expects. With no articles supplied the
// agent pulls from the configured source URL, then the scrapers.
type Input struct {
	Articles []Article
}

// Config configures the agent.
type Config struct {
	// SourceURL is a JSON endpoint returning {"articles": [...]}.
	// A "{symbol}" placeholder is substituted per request.
	SourceURL   string
	MaxArticles int
	CacheTTL    time.Duration
	HTTP        httpx.Doer
}

func DefaultConfig() Config {
	return Config{
		MaxArticles: 15,
		CacheTTL:    1 * time.Hour,
	}
}

// Agent scores articles and caches verdicts per symbol.
type Agent struct {
	cfg      Config
	analyzer *govader.SentimentIntensityAnalyzer
	fetcher  *articleFetcher
	cache    *verdictCache
}

var _ agent.Agent = (*Agent)(nil)

func New(cfg Config) *Agent {
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 15
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 1 * time.Hour
	}
	return &Agent{
		cfg:      cfg,
		analyzer: govader.NewSentimentIntensityAnalyzer(),
		fetcher:  newArticleFetcher(cfg.SourceURL, cfg.HTTP),
		cache:    newVerdictCache(cfg.CacheTTL),
	}
}

func (a *Agent) Name() string { return AgentName }

func (a *Agent) Init(ctx context.Context) error {
	a.cache.start()
	return nil
}

func (a *Agent) Cleanup(ctx context.Context) error {
	a.cache.stop()
	return nil
}

// Execute analyzes an Input payload, consulting the verdict cache when
// the caller supplied no articles.
func (a *Agent) Execute(ctx context.Context, req agent.Request) (agent.Result, error) {
	var in Input
	if req.Payload != nil {
		var ok bool
		in, ok = req.Payload.(Input)
		if !ok {
			return agent.Result{}, fmt.Errorf("sentiment: expected sentiment.Input payload, got %T", req.Payload)
		}
	}

	verdict, err := a.AnalyzeSymbol(ctx, req.Symbol, in.Articles)
	if err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Agent: AgentName, Symbol: req.Symbol, Data: verdict}, nil
}

// AnalyzeSymbol scores the given articles, or fetches articles for the
// symbol when none are supplied. Fetched verdicts are cached.
func (a *Agent) AnalyzeSymbol(ctx context.Context, symbol string, articles []Article) (Verdict, error) {
	ctx, span := trace.StartSpan(ctx, "sentiment-analyze")
	defer span.End()

	supplied := len(articles) > 0
	if !supplied {
		if cached, ok := a.cache.get(symbol); ok {
			logger.Info(ctx, "Using cached sentiment", "symbol", symbol,
				"age_minutes", time.Since(time.Unix(cached.Timestamp, 0)).Minutes())
			return cached, nil
		}

		var err error
		articles, err = a.fetcher.Fetch(ctx, symbol, a.cfg.MaxArticles)
		if err != nil {
			return Verdict{}, err
		}
	}

	if len(articles) > a.cfg.MaxArticles {
		articles = articles[:a.cfg.MaxArticles]
	}

	verdict := a.score(symbol, articles)
	logger.Sentiment(ctx, symbol, verdict.Overall, verdict.Score, len(verdict.Articles))

	if !supplied {
		a.cache.set(symbol, verdict)
	}
	return verdict, nil
}

// ScoreArticle scores a single article's title and body together.
func (a *Agent) ScoreArticle(article Article) ArticleScore {
	text := strings.TrimSpace(article.Title + " " + article.Content)
	scores := a.analyzer.PolarityScores(text)

	words := len(strings.Fields(text))
	comparative := 0.0
	if words > 0 {
		comparative = scores.Compound / float64(words)
	}

	vote := "neutral"
	switch {
	case scores.Compound >= 0.05:
		vote = "positive"
	case scores.Compound <= -0.05:
		vote = "negative"
	}

	return ArticleScore{
		Title:       article.Title,
		URL:         article.URL,
		Score:       scores.Compound,
		Comparative: comparative,
		Vote:        vote,
	}
}

func (a *Agent) score(symbol string, articles []Article) Verdict {
	verdict := Verdict{
		Symbol:    symbol,
		Overall:   "neutral",
		Timestamp: time.Now().Unix(),
	}

	if len(articles) == 0 {
		return verdict
	}

	total := 0.0
	for _, article := range articles {
		s := a.ScoreArticle(article)
		verdict.Articles = append(verdict.Articles, s)
		total += s.Score
	}

	verdict.Score = total / float64(len(verdict.Articles))
	verdict.Overall = band(verdict.Score)
	return verdict
}

// band buckets a mean score into the five sentiment bands.
func band(score float64) string {
	switch {
	case score > 0.25:
		return "very positive"
	case score > 0.05:
		return "positive"
	case score > -0.05:
		return "neutral"
	case score > -0.25:
		return "negative"
	default:
		return "very negative"
	}
}

// verdictCache stores verdicts temporarily per symbol.
type verdictCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	done chan struct{}
}

type cacheEntry struct {
	verdict   Verdict
	timestamp time.Time
}

func newVerdictCache(ttl time.Duration) *verdictCache {
	return &verdictCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		done: make(chan struct{}),
	}
}

func (c *verdictCache) start() {
	go c.cleanupLoop()
}

func (c *verdictCache) stop() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *verdictCache) get(symbol string) (Verdict, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists || time.Since(entry.timestamp) > c.ttl {
		return Verdict{}, false
	}
	return entry.verdict, true
}

func (c *verdictCache) set(symbol string, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[symbol] = &cacheEntry{verdict: v, timestamp: time.Now()}
}

func (c *verdictCache) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *verdictCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.data, symbol)
		}
	}
}
