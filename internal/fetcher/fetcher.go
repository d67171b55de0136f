package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/velofit/framesearch/internal/metrics"
	"github.com/velofit/framesearch/internal/pipeline"
)

// Config controls the fetch stage.
type Config struct {
	Concurrency int
	Force       bool
}

// Stats summarizes one fetch run.
type Stats struct {
	Fetched int
	Cached  int
	Skipped int
	Failed  int
}

// Fetcher drives a bounded worker pool over the collected URL set. Each
// worker owns an independent browser session; the page cache is the only
// shared sink and workers write disjoint slugs.
type Fetcher struct {
	cfg         Config
	cache       pipeline.PageCache
	retry       pipeline.RetryPolicy
	newRenderer RendererFactory
	companion   pipeline.CompanionClient
	logger      *zap.Logger
}

// New builds a Fetcher.
func New(
	cfg Config,
	cache pipeline.PageCache,
	retry pipeline.RetryPolicy,
	newRenderer RendererFactory,
	companion pipeline.CompanionClient,
	logger *zap.Logger,
) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:         cfg,
		cache:       cache,
		retry:       retry,
		newRenderer: newRenderer,
		companion:   companion,
		logger:      logger,
	}
}

// Run fetches every URL in the set, skipping entries already cached unless
// the force flag is set. Failures are per-URL; the run always completes.
func (f *Fetcher) Run(ctx context.Context, urls []pipeline.CollectedURL) Stats {
	workers := f.cfg.Concurrency
	if workers > len(urls) && len(urls) > 0 {
		workers = len(urls)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total Stats
	)

	// Round-robin partitioning keeps each worker's slug set disjoint.
	for w := 0; w < workers; w++ {
		batch := make([]pipeline.CollectedURL, 0, len(urls)/workers+1)
		for i := w; i < len(urls); i += workers {
			batch = append(batch, urls[i])
		}
		wg.Add(1)
		go func(batch []pipeline.CollectedURL) {
			defer wg.Done()
			stats := f.runWorker(ctx, batch)
			mu.Lock()
			total.Fetched += stats.Fetched
			total.Cached += stats.Cached
			total.Skipped += stats.Skipped
			total.Failed += stats.Failed
			mu.Unlock()
		}(batch)
	}
	wg.Wait()
	return total
}

func (f *Fetcher) runWorker(ctx context.Context, batch []pipeline.CollectedURL) Stats {
	var stats Stats

	renderer, err := f.newRenderer()
	if err != nil {
		f.logger.Error("renderer start failed", zap.Error(err))
		stats.Failed = len(batch)
		return stats
	}
	defer renderer.Close()

	for _, item := range batch {
		if ctx.Err() != nil {
			stats.Skipped += len(batch) - stats.Fetched - stats.Cached - stats.Skipped - stats.Failed
			return stats
		}
		outcome := f.fetchOne(ctx, renderer, item)
		metrics.PagesFetchedTotal.WithLabelValues(string(item.Vendor), outcome).Inc()
		switch outcome {
		case "fetched":
			stats.Fetched++
		case "cached":
			stats.Cached++
		case "failed":
			stats.Failed++
		default:
			stats.Skipped++
		}
	}
	return stats
}

func (f *Fetcher) fetchOne(ctx context.Context, renderer pipeline.Renderer, item pipeline.CollectedURL) string {
	slug, err := pipeline.SlugFor(item.Vendor, item.URL)
	if err != nil {
		f.logger.Warn("unusable product url", zap.String("url", item.URL), zap.Error(err))
		return "skipped"
	}
	log := f.logger.With(
		zap.String("vendor", string(item.Vendor)),
		zap.String("slug", slug),
		zap.String("url", item.URL),
	)

	html, outcome := f.ensureHTML(ctx, renderer, item, slug, log)
	if outcome == "failed" {
		return outcome
	}

	f.ensureCompanion(ctx, item.Vendor, slug, html, log)
	return outcome
}

// ensureHTML returns the page body (fresh or cached) so the companion
// resolver can inspect it.
func (f *Fetcher) ensureHTML(
	ctx context.Context,
	renderer pipeline.Renderer,
	item pipeline.CollectedURL,
	slug string,
	log *zap.Logger,
) ([]byte, string) {
	if !f.cfg.Force {
		has, err := f.cache.HasHTML(ctx, item.Vendor, slug)
		if err != nil {
			log.Error("cache lookup failed", zap.Error(err))
			return nil, "failed"
		}
		if has {
			page, err := f.cache.Get(ctx, item.Vendor, slug)
			if err != nil {
				log.Error("cache read failed", zap.Error(err))
				return nil, "failed"
			}
			log.Debug("skipping cached page")
			return page.HTML, "cached"
		}
	}

	result, err := f.renderWithRetry(ctx, renderer, item)
	if err != nil {
		log.Warn("page fetch failed", zap.Error(err))
		return nil, "failed"
	}

	if err := f.cache.PutHTML(ctx, item.Vendor, slug, item.URL, []byte(result.HTML)); err != nil {
		log.Error("cache write failed", zap.Error(err))
		return nil, "failed"
	}
	log.Info("page fetched", zap.Int("status", result.StatusCode), zap.Int("bytes", len(result.HTML)))
	return []byte(result.HTML), "fetched"
}

func (f *Fetcher) renderWithRetry(
	ctx context.Context,
	renderer pipeline.Renderer,
	item pipeline.CollectedURL,
) (pipeline.RenderResult, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result, err := renderer.Render(ctx, item.URL)
		metrics.FetchDurationSeconds.WithLabelValues(string(item.Vendor)).Observe(time.Since(start).Seconds())
		if err == nil {
			if result.StatusCode >= 400 {
				err = classifyStatus(item.URL, result.StatusCode)
			} else {
				return result, nil
			}
		} else {
			err = pipeline.NewTransientFetchError(item.URL, err)
		}

		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			return pipeline.RenderResult{}, lastErr
		}
		metrics.FetchRetriesTotal.WithLabelValues(string(item.Vendor)).Inc()
		select {
		case <-ctx.Done():
			return pipeline.RenderResult{}, ctx.Err()
		case <-time.After(f.retry.Backoff(attempt)):
		}
	}
}

func classifyStatus(url string, status int) error {
	if status == 429 || status >= 500 {
		return pipeline.NewTransientFetchError(url, fmt.Errorf("status %d", status))
	}
	return pipeline.NewPermanentFetchError(url, status, fmt.Errorf("status %d", status))
}

// ensureCompanion fetches the secondary payload when the vendor needs one.
// It is only attempted after the primary page is in the cache; a failure
// here degrades to HTML-only extraction rather than failing the page.
func (f *Fetcher) ensureCompanion(
	ctx context.Context,
	vendor pipeline.Vendor,
	slug string,
	html []byte,
	log *zap.Logger,
) {
	resolve := CompanionFor(vendor)
	if resolve == nil || f.companion == nil {
		return
	}
	companionURL, ok := resolve(slug, html)
	if !ok {
		return
	}

	if !f.cfg.Force {
		has, err := f.cache.HasCompanion(ctx, vendor, slug)
		if err != nil {
			log.Error("companion cache lookup failed", zap.Error(err))
			return
		}
		if has {
			return
		}
	}

	payload, err := f.getJSONWithRetry(ctx, vendor, companionURL)
	if err != nil {
		log.Warn("companion fetch failed", zap.String("companion_url", companionURL), zap.Error(err))
		return
	}
	if err := f.cache.PutCompanion(ctx, vendor, slug, payload); err != nil {
		log.Error("companion cache write failed", zap.Error(err))
		return
	}
	log.Info("companion payload fetched", zap.Int("bytes", len(payload)))
}

func (f *Fetcher) getJSONWithRetry(ctx context.Context, vendor pipeline.Vendor, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		payload, err := f.companion.GetJSON(ctx, url)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !f.retry.ShouldRetry(err, attempt+1) {
			return nil, lastErr
		}
		metrics.FetchRetriesTotal.WithLabelValues(string(vendor)).Inc()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.retry.Backoff(attempt)):
		}
	}
}
