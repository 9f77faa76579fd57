package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"marketpulse/internal/httpx"
	"marketpulse/internal/logger"
)

// articleFetcher pulls articles from a JSON feed when one is configured,
// falling back to scraping public news pages.
type articleFetcher struct {
	sourceURL string
	http      httpx.Doer
	sources   []newsSource
	timeout   time.Duration
}

// newsSource defines a scraped news page.
type newsSource struct {
	Name      string
	BaseURL   string
	QuotePath string // "{symbol}" substituted per request
	Selectors articleSelectors
	RateLimit time.Duration
}

// articleSelectors defines CSS selectors for extracting article data.
type articleSelectors struct {
	ArticleContainer string
	Title            string
	URL              string
}

func newArticleFetcher(sourceURL string, doer httpx.Doer) *articleFetcher {
	if doer == nil {
		doer = httpx.New(30 * time.Second)
	}
	return &articleFetcher{
		sourceURL: sourceURL,
		http:      doer,
		sources:   defaultSources(),
		timeout:   30 * time.Second,
	}
}

func defaultSources() []newsSource {
	return []newsSource{
		{
			Name:      "Finviz",
			BaseURL:   "https://finviz.com",
			QuotePath: "/quote.ashx?t={symbol}",
			Selectors: articleSelectors{
				ArticleContainer: "table.fullview-news-outer tr",
				Title:            "a.tab-link-news",
				URL:              "a.tab-link-news",
			},
			RateLimit: 2 * time.Second,
		},
		{
			Name:      "YahooFinance",
			BaseURL:   "https://finance.yahoo.com",
			QuotePath: "/quote/{symbol}/news",
			Selectors: articleSelectors{
				ArticleContainer: "li.js-stream-content",
				Title:            "h3 a",
				URL:              "h3 a",
			},
			RateLimit: 2 * time.Second,
		},
	}
}

// Fetch returns up to maxArticles for the symbol. A configured JSON feed
// wins; scrapers are the fallback.
func (f *articleFetcher) Fetch(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	if f.sourceURL != "" {
		articles, err := f.fetchFeed(ctx, symbol, maxArticles)
		if err != nil {
			return nil, err
		}
		if len(articles) > 0 {
			return articles, nil
		}
		logger.Info(ctx, "Feed returned no articles, falling back to scraping", "symbol", symbol)
	}
	return f.scrape(ctx, symbol, maxArticles)
}

// fetchFeed pulls {"articles": [...]} from the configured endpoint.
func (f *articleFetcher) fetchFeed(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	u := strings.ReplaceAll(f.sourceURL, "{symbol}", url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sentiment feed http %d", resp.StatusCode)
	}

	var payload struct {
		Articles []Article `json:"articles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("sentiment feed decode: %w", err)
	}

	if len(payload.Articles) > maxArticles {
		payload.Articles = payload.Articles[:maxArticles]
	}
	return payload.Articles, nil
}

// scrape collects article headlines from the configured news pages.
func (f *articleFetcher) scrape(ctx context.Context, symbol string, maxArticles int) ([]Article, error) {
	logger.Info(ctx, "Scraping news", "symbol", symbol, "sources", len(f.sources))

	all := []Article{}
	perSource := maxArticles / len(f.sources)
	if perSource < 1 {
		perSource = 1
	}

	for _, source := range f.sources {
		articles, err := f.scrapeSource(ctx, source, symbol, perSource)
		if err != nil {
			logger.ErrorWithErr(ctx, "Failed to scrape source", err, "source", source.Name, "symbol", symbol)
			continue
		}
		all = append(all, articles...)

		// Rate limiting between sources
		time.Sleep(source.RateLimit)
	}

	logger.Info(ctx, "News scraping completed", "symbol", symbol, "articles", len(all))
	return all, nil
}

func (f *articleFetcher) scrapeSource(ctx context.Context, source newsSource, symbol string, maxArticles int) ([]Article, error) {
	articles := []Article{}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(source.BaseURL)),
		colly.MaxDepth(1),
		colly.Async(false),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnHTML(source.Selectors.ArticleContainer, func(e *colly.HTMLElement) {
		if len(articles) >= maxArticles {
			return
		}

		title := strings.TrimSpace(e.ChildText(source.Selectors.Title))
		if title == "" {
			return
		}

		articleURL := e.ChildAttr(source.Selectors.URL, "href")
		if articleURL != "" && !strings.HasPrefix(articleURL, "http") {
			articleURL = source.BaseURL + articleURL
		}

		articles = append(articles, Article{
			Title:  title,
			URL:    articleURL,
			Source: source.Name,
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Scraping error", err, "source", source.Name, "url", r.Request.URL.String())
	})

	quoteURL := source.BaseURL + strings.ReplaceAll(source.QuotePath, "{symbol}", strings.ToUpper(symbol))
	if err := c.Visit(quoteURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", quoteURL, err)
	}
	c.Wait()

	return f.enrichArticles(ctx, articles), nil
}

// enrichArticles fetches article bodies for headlines with no content.
func (f *articleFetcher) enrichArticles(ctx context.Context, articles []Article) []Article {
	enriched := make([]Article, len(articles))
	copy(enriched, articles)

	for i := range enriched {
		if enriched[i].Content != "" || enriched[i].URL == "" {
			continue
		}
		enriched[i].Content = f.fetchArticleContent(ctx, enriched[i].URL)

		// Rate limiting between article fetches
		time.Sleep(500 * time.Millisecond)
	}

	return enriched
}

// fetchArticleContent pulls paragraph text out of an article page.
func (f *articleFetcher) fetchArticleContent(ctx context.Context, articleURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return ""
	}

	resp, err := f.http.Do(req)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to fetch article content", err, "url", articleURL)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ""
	}

	paragraphs := []string{}
	doc.Find("article p, div.article-body p, div.content-body p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if len(text) > 20 {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}

// getDomain extracts the hostname from a URL.
func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
