package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/metrics"
	"github.com/velofit/framesearch/internal/pipeline"
)

// Config controls listing-page fetch behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxPages  int
}

// Collector paginates a vendor catalog and accumulates unique product URLs.
// A listing fetch that fails after exhausting retries stops pagination and
// returns what was collected so far.
type Collector struct {
	cfg      Config
	strategy Strategy
	retry    pipeline.RetryPolicy
	base     *colly.Collector
	logger   *zap.Logger
}

// New builds a Collector for one vendor.
func New(cfg Config, strategy Strategy, retry pipeline.RetryPolicy, logger *zap.Logger) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(colly.Async(false))
	base.IgnoreRobotsTxt = false
	base.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	return &Collector{
		cfg:      cfg,
		strategy: strategy,
		retry:    retry,
		base:     base,
		logger:   logger,
	}
}

// Collect walks the catalog starting from each start URL and returns the
// deduplicated, sorted product URL set.
func (c *Collector) Collect(ctx context.Context, startURLs []string) ([]pipeline.CollectedURL, error) {
	seen := make(map[string]struct{})
	var firstErr error

	for _, start := range startURLs {
		if err := c.paginate(ctx, start, seen); err != nil {
			c.logger.Warn("pagination stopped early",
				zap.String("vendor", string(c.strategy.Vendor())),
				zap.String("start_url", start),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	urls := make([]pipeline.CollectedURL, 0, len(seen))
	for u := range seen {
		urls = append(urls, pipeline.CollectedURL{URL: u, Vendor: c.strategy.Vendor()})
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i].URL < urls[j].URL })

	// Partial results are still results; the caller decides whether an
	// early stop is acceptable.
	return urls, firstErr
}

func (c *Collector) paginate(ctx context.Context, start string, seen map[string]struct{}) error {
	current := start
	for pages := 0; current != "" && pages < c.cfg.MaxPages; pages++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		body, err := c.fetchListing(ctx, current)
		if err != nil {
			return err
		}

		pageURL, err := url.Parse(current)
		if err != nil {
			return fmt.Errorf("parse listing url: %w", err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("parse listing page: %w", err)
		}

		links := c.strategy.ProductLinks(doc, pageURL)
		added := 0
		for _, link := range links {
			normalized, err := pipeline.NormalizeURL(link)
			if err != nil {
				continue
			}
			if _, ok := seen[normalized]; !ok {
				seen[normalized] = struct{}{}
				added++
			}
		}
		metrics.ListingPagesTotal.WithLabelValues(string(c.strategy.Vendor())).Inc()
		c.logger.Debug("listing page processed",
			zap.String("url", current),
			zap.Int("links", len(links)),
			zap.Int("new", added),
			zap.Int("total", len(seen)),
		)

		current = c.strategy.NextPage(doc, pageURL)
	}
	return nil
}

func (c *Collector) fetchListing(ctx context.Context, listingURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		body, err := c.fetchOnce(listingURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt+1) {
			return nil, lastErr
		}
		metrics.FetchRetriesTotal.WithLabelValues(string(c.strategy.Vendor())).Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retry.Backoff(attempt)):
		}
	}
}

func (c *Collector) fetchOnce(listingURL string) ([]byte, error) {
	collector := c.base.Clone()

	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = classifyListingError(listingURL, r, err)
	})

	if err := collector.Visit(listingURL); err != nil {
		return nil, pipeline.NewTransientFetchError(listingURL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, pipeline.NewTransientFetchError(listingURL, fmt.Errorf("empty listing body"))
	}
	return body, nil
}

func classifyListingError(listingURL string, r *colly.Response, err error) error {
	status := 0
	if r != nil {
		status = r.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return pipeline.NewTransientFetchError(listingURL, fmt.Errorf("status %d: %w", status, err))
	case status >= 400:
		return pipeline.NewPermanentFetchError(listingURL, status, err)
	default:
		return pipeline.NewTransientFetchError(listingURL, err)
	}
}
